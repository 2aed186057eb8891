package models

import (
	"github.com/pietrosul/MyBusApp/internal/transit"
	"github.com/pietrosul/MyBusApp/internal/viewport"
)

// StationsViewEntry is a session's station layer with display colors.
type StationsViewEntry struct {
	State    viewport.State      `json:"state"`
	Region   transit.Region      `json:"region"`
	Bounds   transit.BoundingBox `json:"bounds"`
	Stations []StationEntry      `json:"stations"`
	Sequence uint64              `json:"sequence"`
}

func NewStationsViewEntry(view viewport.StationsView) StationsViewEntry {
	return StationsViewEntry{
		State:    view.State,
		Region:   view.Region,
		Bounds:   view.Bounds,
		Stations: NewStationEntries(view.Stations),
		Sequence: view.Sequence,
	}
}

type SessionEntry struct {
	Id       string                `json:"id"`
	Stations StationsViewEntry     `json:"stations"`
	Arrivals viewport.ArrivalsView `json:"arrivals"`
}

func NewSessionEntry(s *viewport.Session) SessionEntry {
	return SessionEntry{
		Id:       s.ID,
		Stations: NewStationsViewEntry(s.Stations()),
		Arrivals: s.Arrivals(),
	}
}
