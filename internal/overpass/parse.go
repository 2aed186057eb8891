package overpass

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pietrosul/MyBusApp/internal/transit"
)

// Response is the JSON document returned by the interpreter.
type Response struct {
	Version   float64   `json:"version"`
	Generator string    `json:"generator"`
	Remark    string    `json:"remark"`
	Elements  []Element `json:"elements"`
}

type Element struct {
	Type    string            `json:"type"`
	ID      int64             `json:"id"`
	Lat     *float64          `json:"lat"`
	Lon     *float64          `json:"lon"`
	Tags    map[string]string `json:"tags"`
	Members []Member          `json:"members"`
}

type Member struct {
	Type     string     `json:"type"`
	Ref      int64      `json:"ref"`
	Role     string     `json:"role"`
	Geometry []GeoPoint `json:"geometry"`
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// isStopRole reports whether a relation member with role is a place where
// passengers board.
func isStopRole(role string) bool {
	return strings.HasPrefix(role, "stop") || strings.HasPrefix(role, "platform")
}

func lineKey(kind, ref string) string {
	return kind + "/" + ref
}

// Decode parses a raw interpreter response.
func Decode(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode overpass response: %w", err)
	}
	if len(resp.Elements) == 0 && resp.Remark != "" {
		return nil, fmt.Errorf("overpass: %s", resp.Remark)
	}
	return &resp, nil
}

// ToSnapshot turns relations into lines and their stop nodes into stations.
// Relations describing the same line (one per direction) are merged.
func ToSnapshot(resp *Response) *transit.Snapshot {
	nodes := make(map[int64]Element)
	for _, el := range resp.Elements {
		if el.Type == "node" {
			nodes[el.ID] = el
		}
	}

	linesByKey := make(map[string]*transit.Line)
	var lineOrder []string
	stationLines := make(map[int64]map[string]struct{})

	for _, el := range resp.Elements {
		if el.Type != "relation" {
			continue
		}
		kind := strings.ToLower(strings.TrimSpace(el.Tags["route"]))
		ref := strings.TrimSpace(el.Tags["ref"])
		if ref == "" {
			ref = strings.TrimSpace(el.Tags["name"])
		}
		if kind == "" || ref == "" {
			continue
		}

		key := lineKey(kind, ref)
		line, seen := linesByKey[key]
		if !seen {
			vt := transit.Classify(kind, ref)
			line = &transit.Line{
				ID:            strconv.FormatInt(el.ID, 10),
				Name:          ref,
				VehicleType:   vt,
				Color:         vt.Color(),
				OperatorColor: strings.TrimSpace(el.Tags["colour"]),
			}
			linesByKey[key] = line
			lineOrder = append(lineOrder, key)
		}

		for _, m := range el.Members {
			switch {
			case m.Type == "node" && isStopRole(m.Role):
				if stationLines[m.Ref] == nil {
					stationLines[m.Ref] = make(map[string]struct{})
				}
				stationLines[m.Ref][key] = struct{}{}
			case m.Type == "way" && !seen && !isStopRole(m.Role):
				for _, p := range m.Geometry {
					line.Shape = append(line.Shape, transit.LatLng{Lat: p.Lat, Lon: p.Lon})
				}
			}
		}
	}

	snapshot := &transit.Snapshot{
		Lines:    make([]transit.Line, 0, len(lineOrder)),
		Stations: make([]transit.Station, 0, len(stationLines)),
	}
	for _, key := range lineOrder {
		snapshot.Lines = append(snapshot.Lines, *linesByKey[key])
	}

	for nodeID, keys := range stationLines {
		node, ok := nodes[nodeID]
		if !ok || node.Lat == nil || node.Lon == nil {
			continue
		}
		station := transit.Station{
			ID:    strconv.FormatInt(nodeID, 10),
			Name:  strings.TrimSpace(node.Tags["name"]),
			Lat:   *node.Lat,
			Lon:   *node.Lon,
			Lines: make([]transit.LineRef, 0, len(keys)),
		}
		for key := range keys {
			station.Lines = append(station.Lines, linesByKey[key].Ref())
		}
		sort.Slice(station.Lines, func(i, j int) bool {
			return station.Lines[i].Name < station.Lines[j].Name
		})
		station.VehicleType = transit.DominantVehicleType(station.Lines)
		station = station.Normalize()
		if !station.HasLocation() {
			continue
		}
		snapshot.Stations = append(snapshot.Stations, station)
	}
	sort.Slice(snapshot.Stations, func(i, j int) bool {
		return snapshot.Stations[i].ID < snapshot.Stations[j].ID
	})

	return snapshot
}
