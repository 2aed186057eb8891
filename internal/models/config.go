package models

import "github.com/pietrosul/MyBusApp/internal/transit"

type BuildInfo struct {
	Version     string `json:"version"`
	CommitHash  string `json:"commitHash"`
	CommitShort string `json:"commitShort"`
	BuildTime   string `json:"buildTime"`
}

// ConfigModel tells a map client how to set up its view.
type ConfigModel struct {
	Id                  string          `json:"id"`
	Name                string          `json:"name"`
	Build               BuildInfo       `json:"build"`
	DataSource          string          `json:"dataSource"`
	Status              string          `json:"status"`
	InitialRegion       transit.Region  `json:"initialRegion"`
	CoverageRegion      *transit.Region `json:"coverageRegion,omitempty"`
	VisibilityThreshold float64         `json:"visibilityThreshold"`
	MinSpan             float64         `json:"minSpan"`
	MaxSpan             float64         `json:"maxSpan"`
	MaxStations         int             `json:"maxStations"`
	DebounceMs          int64           `json:"debounceMs"`
	LiveArrivals        bool            `json:"liveArrivals"`
}
