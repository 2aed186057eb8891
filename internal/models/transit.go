package models

import (
	"github.com/twpayne/go-polyline"

	"github.com/pietrosul/MyBusApp/internal/transit"
	"github.com/pietrosul/MyBusApp/internal/utils"
)

type VehicleTypeEntry struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func NewVehicleTypeEntries() []VehicleTypeEntry {
	types := transit.AllVehicleTypes()
	out := make([]VehicleTypeEntry, 0, len(types))
	for _, vt := range types {
		out = append(out, VehicleTypeEntry{Name: vt.String(), Color: vt.Color()})
	}
	return out
}

// EncodedPolyline is a shape in Google's encoded polyline format.
type EncodedPolyline struct {
	Points string  `json:"points"`
	Length int     `json:"length"`
	Meters float64 `json:"meters"`
}

func NewEncodedPolyline(shape []transit.LatLng) *EncodedPolyline {
	if len(shape) == 0 {
		return nil
	}
	coords := make([][]float64, 0, len(shape))
	path := make([][2]float64, 0, len(shape))
	for _, p := range shape {
		coords = append(coords, []float64{p.Lat, p.Lon})
		path = append(path, [2]float64{p.Lat, p.Lon})
	}
	return &EncodedPolyline{
		Points: string(polyline.EncodeCoords(coords)),
		Length: len(shape),
		Meters: utils.PathLength(path),
	}
}

type LineEntry struct {
	transit.Line
	Polyline *EncodedPolyline `json:"polyline,omitempty"`
}

// NewLineEntry converts a line; the shape is only encoded when withShape is set.
func NewLineEntry(line transit.Line, withShape bool) LineEntry {
	entry := LineEntry{Line: line}
	if withShape {
		entry.Polyline = NewEncodedPolyline(line.Shape)
	}
	return entry
}

type LineDetailsEntry struct {
	LineEntry
	Stations []StationEntry `json:"stations"`
}

func NewLineDetailsEntry(details *transit.LineDetails) LineDetailsEntry {
	stations := make([]StationEntry, 0, len(details.Stations))
	for _, s := range details.Stations {
		stations = append(stations, NewStationEntry(s))
	}
	return LineDetailsEntry{
		LineEntry: NewLineEntry(details.Line, true),
		Stations:  stations,
	}
}

type StationEntry struct {
	transit.Station
	Color    string   `json:"color"`
	Distance *float64 `json:"distance,omitempty"`
}

func NewStationEntry(s transit.Station) StationEntry {
	if s.Lines == nil {
		s.Lines = []transit.LineRef{}
	}
	return StationEntry{Station: s, Color: s.VehicleType.Color()}
}

// NewStationEntryWithDistance adds the distance in meters from lat/lon.
func NewStationEntryWithDistance(s transit.Station, lat, lon float64) StationEntry {
	entry := NewStationEntry(s)
	d := utils.Distance(lat, lon, s.Lat, s.Lon)
	entry.Distance = &d
	return entry
}

func NewStationEntries(stations []transit.Station) []StationEntry {
	out := make([]StationEntry, 0, len(stations))
	for _, s := range stations {
		out = append(out, NewStationEntry(s))
	}
	return out
}

type ArrivalsEntry struct {
	StationID   string                    `json:"stationId"`
	StationName string                    `json:"stationName"`
	Synthetic   bool                      `json:"synthetic"`
	Arrivals    []transit.ArrivalEstimate `json:"arrivals"`
}

func NewArrivalsEntry(station transit.Station, estimates []transit.ArrivalEstimate) ArrivalsEntry {
	if estimates == nil {
		estimates = []transit.ArrivalEstimate{}
	}
	synthetic := len(estimates) > 0
	for _, e := range estimates {
		synthetic = synthetic && e.Synthetic
	}
	return ArrivalsEntry{
		StationID:   station.ID,
		StationName: station.Name,
		Synthetic:   synthetic,
		Arrivals:    estimates,
	}
}
