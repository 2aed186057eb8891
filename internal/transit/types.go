// Package transit holds the canonical data model shared by every data source:
// regions and bounding boxes, stations, lines, arrival estimates and the
// vehicle-type classification used to color them.
package transit

import (
	"errors"
	"math"
)

// UnknownStationName is used for stations whose source record carries no name.
const UnknownStationName = "Stație necunoscută"

// PlaceholderDestination labels estimates whose direction is not known.
const PlaceholderDestination = "direction1"

var (
	// ErrNotFound is returned when a station or line ID is not known.
	ErrNotFound = errors.New("not found")
	// ErrArrivalsUnavailable is returned by sources that have no live arrivals endpoint.
	ErrArrivalsUnavailable = errors.New("arrivals not available from this source")
	// ErrVehiclesUnavailable is returned by sources that have no vehicle positions endpoint.
	ErrVehiclesUnavailable = errors.New("vehicle positions not available from this source")
)

// LatLng is a single WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LineRef is the reduced view of a line attached to a station.
type LineRef struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	VehicleType VehicleType `json:"vehicleType"`
}

// Station is a stop served by one or more lines.
type Station struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Lat         float64     `json:"lat"`
	Lon         float64     `json:"lon"`
	VehicleType VehicleType `json:"vehicleType"`
	Lines       []LineRef   `json:"lines"`
}

// HasLocation reports whether the station carries usable coordinates.
func (s Station) HasLocation() bool {
	return validCoordinate(s.Lat, 90) && validCoordinate(s.Lon, 180) && !(s.Lat == 0 && s.Lon == 0)
}

// Normalize fills per-field defaults for partially populated records.
func (s Station) Normalize() Station {
	if s.Name == "" {
		s.Name = UnknownStationName
	}
	if s.Lines == nil {
		s.Lines = []LineRef{}
	}
	return s
}

// Line is a transit line as loaded at startup. Color is always the color of
// its vehicle type; OperatorColor keeps whatever color the source published.
type Line struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	VehicleType   VehicleType `json:"vehicleType"`
	Color         string      `json:"color"`
	OperatorColor string      `json:"operatorColor,omitempty"`
	Notifications bool        `json:"notifications"`
	Fare          float64     `json:"fare"`
	Shape         []LatLng    `json:"-"`
}

// Ref returns the station-side reference for the line.
func (l Line) Ref() LineRef {
	return LineRef{ID: l.ID, Name: l.Name, VehicleType: l.VehicleType}
}

// LineDetails is a line together with the stations it serves, in route order
// when the source provides one.
type LineDetails struct {
	Line     Line      `json:"line"`
	Stations []Station `json:"stations"`
}

// ArrivalEstimate lists the next arrivals of one line at a station.
// Minutes is sorted ascending.
type ArrivalEstimate struct {
	LineID      string      `json:"lineId"`
	LineName    string      `json:"lineName"`
	VehicleType VehicleType `json:"vehicleType"`
	Color       string      `json:"color"`
	Destination string      `json:"destination"`
	Minutes     []int       `json:"minutes"`
	Synthetic   bool        `json:"synthetic"`
}

// Vehicle is a live vehicle position on a line.
type Vehicle struct {
	ID      string  `json:"id"`
	LineID  string  `json:"lineId"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Bearing float64 `json:"bearing"`
}

// Snapshot is the result of a one-time bulk load of a whole network.
type Snapshot struct {
	Lines    []Line
	Stations []Station
}

func validCoordinate(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}
