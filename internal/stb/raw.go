package stb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pietrosul/MyBusApp/internal/transit"
)

// flexFloat accepts a JSON number or a numeric string. Anything else leaves
// OK unset instead of failing the whole payload.
type flexFloat struct {
	Value float64
	OK    bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	*f = flexFloat{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		f.Value, f.OK = t, true
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			f.Value, f.OK = parsed, true
		}
	}
	return nil
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = flexString(strings.TrimSpace(t))
	case float64:
		*s = flexString(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		*s = flexString(strconv.FormatBool(t))
	default:
		return fmt.Errorf("unexpected JSON value for identifier: %s", string(data))
	}
	return nil
}

type rawLine struct {
	ID               flexString `json:"id"`
	Name             flexString `json:"name"`
	Type             string     `json:"type"`
	Color            string     `json:"color"`
	HasNotifications bool       `json:"has_notifications"`
	Price            flexFloat  `json:"price"`
}

type rawStation struct {
	ID    flexString `json:"id"`
	Name  string     `json:"name"`
	Lat   flexFloat  `json:"lat"`
	Lng   flexFloat  `json:"lng"`
	Lon   flexFloat  `json:"lon"`
	Lines []rawLine  `json:"lines"`
}

type rawLineDetails struct {
	rawLine
	Stations []rawStation `json:"stations"`
}

type rawArrival struct {
	LineID      flexString  `json:"line_id"`
	LineName    flexString  `json:"line_name"`
	Type        string      `json:"type"`
	Destination string      `json:"destination"`
	Minutes     []flexFloat `json:"minutes"`
}

type rawVehicle struct {
	ID      flexString `json:"id"`
	LineID  flexString `json:"line_id"`
	Lat     flexFloat  `json:"lat"`
	Lng     flexFloat  `json:"lng"`
	Lon     flexFloat  `json:"lon"`
	Bearing flexFloat  `json:"bearing"`
}

// routeKind maps the operator's type labels onto classifier route kinds.
func routeKind(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "tram", "tramvai":
		return transit.RouteKindTram
	case "trolley", "trolleybus", "troleibuz":
		return transit.RouteKindTrolleybus
	case "subway", "metro", "metrou":
		return transit.RouteKindSubway
	default:
		return transit.RouteKindBus
	}
}

func (l rawLine) toLine() transit.Line {
	name := string(l.Name)
	if name == "" {
		name = string(l.ID)
	}
	vt := transit.Classify(routeKind(l.Type), name)
	line := transit.Line{
		ID:            string(l.ID),
		Name:          name,
		VehicleType:   vt,
		Color:         vt.Color(),
		OperatorColor: strings.TrimSpace(l.Color),
		Notifications: l.HasNotifications,
	}
	if l.Price.OK {
		line.Fare = l.Price.Value
	}
	return line
}

func pickLon(lng, lon flexFloat) flexFloat {
	if lng.OK {
		return lng
	}
	return lon
}

// toStation maps a raw record. ok is false when the record has no usable
// coordinates.
func (s rawStation) toStation() (transit.Station, bool) {
	lon := pickLon(s.Lng, s.Lon)
	station := transit.Station{
		ID:    string(s.ID),
		Name:  strings.TrimSpace(s.Name),
		Lat:   s.Lat.Value,
		Lon:   lon.Value,
		Lines: make([]transit.LineRef, 0, len(s.Lines)),
	}
	for _, l := range s.Lines {
		station.Lines = append(station.Lines, l.toLine().Ref())
	}
	station.VehicleType = transit.DominantVehicleType(station.Lines)
	station = station.Normalize()

	return station, s.Lat.OK && lon.OK && station.ID != "" && station.HasLocation()
}

func (a rawArrival) toEstimate() transit.ArrivalEstimate {
	name := string(a.LineName)
	if name == "" {
		name = string(a.LineID)
	}
	vt := transit.Classify(routeKind(a.Type), name)
	destination := strings.TrimSpace(a.Destination)
	if destination == "" {
		destination = transit.PlaceholderDestination
	}

	minutes := make([]int, 0, len(a.Minutes))
	for _, m := range a.Minutes {
		if m.OK && m.Value >= 0 {
			minutes = append(minutes, int(m.Value))
		}
	}
	sort.Ints(minutes)

	return transit.ArrivalEstimate{
		LineID:      string(a.LineID),
		LineName:    name,
		VehicleType: vt,
		Color:       vt.Color(),
		Destination: destination,
		Minutes:     minutes,
	}
}

func (v rawVehicle) toVehicle(lineID string) (transit.Vehicle, bool) {
	lon := pickLon(v.Lng, v.Lon)
	vehicle := transit.Vehicle{
		ID:     string(v.ID),
		LineID: string(v.LineID),
		Lat:    v.Lat.Value,
		Lon:    lon.Value,
	}
	if vehicle.LineID == "" {
		vehicle.LineID = lineID
	}
	if v.Bearing.OK {
		vehicle.Bearing = v.Bearing.Value
	}
	return vehicle, v.Lat.OK && lon.OK
}

// decodeList decodes either a bare JSON array or an object wrapping the array
// under one of keys.
func decodeList[T any](body []byte, keys ...string) ([]T, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	if body[0] == '[' {
		var out []T
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("failed to decode list: %w", err)
		}
		return out, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode response object: %w", err)
	}
	for _, k := range keys {
		raw, ok := wrapper[k]
		if !ok {
			continue
		}
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("failed to decode %q: %w", k, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("response has none of the fields %v", keys)
}

func decodeObject(body []byte, out any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response object: %w", err)
	}
	return nil
}
