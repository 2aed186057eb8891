package transit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// VehicleType is the closed set of vehicle classes used for rendering.
type VehicleType int

const (
	Bus VehicleType = iota
	NightBus
	RegionalBus
	Tram
	Trolley
	Subway
)

var vehicleTypeNames = [...]string{
	Bus:         "BUS",
	NightBus:    "NIGHT_BUS",
	RegionalBus: "REGIONAL_BUS",
	Tram:        "TRAM",
	Trolley:     "TROLLEY",
	Subway:      "SUBWAY",
}

var vehicleTypeColors = [...]string{
	Bus:         "#0066CC",
	NightBus:    "#1A1A4E",
	RegionalBus: "#8E44AD",
	Tram:        "#D7261E",
	Trolley:     "#2E9E44",
	Subway:      "#F39200",
}

// AllVehicleTypes lists every vehicle type in declaration order.
func AllVehicleTypes() []VehicleType {
	return []VehicleType{Bus, NightBus, RegionalBus, Tram, Trolley, Subway}
}

func (v VehicleType) String() string {
	if v < 0 || int(v) >= len(vehicleTypeNames) {
		return vehicleTypeNames[Bus]
	}
	return vehicleTypeNames[v]
}

// Color returns the fixed display color of the vehicle type.
func (v VehicleType) Color() string {
	if v < 0 || int(v) >= len(vehicleTypeColors) {
		return vehicleTypeColors[Bus]
	}
	return vehicleTypeColors[v]
}

// ParseVehicleType parses the upper-case name produced by String.
func ParseVehicleType(s string) (VehicleType, error) {
	for i, name := range vehicleTypeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return VehicleType(i), nil
		}
	}
	return Bus, fmt.Errorf("unknown vehicle type %q", s)
}

func (v VehicleType) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *VehicleType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseVehicleType(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Route kinds understood by Classify.
const (
	RouteKindBus        = "bus"
	RouteKindTram       = "tram"
	RouteKindTrolleybus = "trolleybus"
	RouteKindSubway     = "subway"
)

// regionalPrefix marks suburban lines operated outside the city proper.
const regionalPrefix = "4"

// Classify maps a route kind and a line reference to a vehicle type.
// Unknown route kinds fall back to Bus. It is the single source of truth
// for both station and line colors.
func Classify(routeKind, lineRef string) VehicleType {
	ref := strings.TrimSpace(lineRef)
	switch strings.ToLower(strings.TrimSpace(routeKind)) {
	case RouteKindBus:
		switch {
		case strings.HasPrefix(strings.ToUpper(ref), "N"):
			return NightBus
		case strings.HasPrefix(ref, regionalPrefix):
			return RegionalBus
		default:
			return Bus
		}
	case RouteKindTram:
		return Tram
	case RouteKindTrolleybus:
		return Trolley
	case RouteKindSubway:
		return Subway
	default:
		return Bus
	}
}

// RouteKindFromGTFS converts a GTFS route_type to a route kind.
func RouteKindFromGTFS(routeType int) string {
	switch routeType {
	case 0:
		return RouteKindTram
	case 1:
		return RouteKindSubway
	case 11:
		return RouteKindTrolleybus
	default:
		return RouteKindBus
	}
}

// DominantVehicleType picks the type used to color a station dot: the
// highest-capacity mode among the lines serving it, Bus when there are none.
func DominantVehicleType(lines []LineRef) VehicleType {
	best := Bus
	bestRank := -1
	for _, l := range lines {
		if r := dominanceRank(l.VehicleType); r > bestRank {
			best, bestRank = l.VehicleType, r
		}
	}
	return best
}

func dominanceRank(v VehicleType) int {
	switch v {
	case Subway:
		return 5
	case Tram:
		return 4
	case Trolley:
		return 3
	case Bus:
		return 2
	case RegionalBus:
		return 1
	default:
		return 0
	}
}
