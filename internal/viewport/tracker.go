// Package viewport keeps the map state of each client: the visible region,
// whether stations should be shown at the current zoom, the debounced
// station fetch and the selected station's arrivals.
package viewport

import "github.com/pietrosul/MyBusApp/internal/transit"

// DefaultRegion is the initial map view over central Bucharest.
var DefaultRegion = transit.Region{Lat: 44.4268, Lon: 26.1025, LatSpan: 0.0922, LonSpan: 0.0421}

// Tracker holds the current region. Every region it stores is clamped.
// It is not safe for concurrent use; sessions guard it.
type Tracker struct {
	minSpan float64
	maxSpan float64
	current transit.Region
	set     bool
}

func NewTracker(minSpan, maxSpan float64) *Tracker {
	return &Tracker{minSpan: minSpan, maxSpan: maxSpan}
}

// Update stores the clamped region and returns it with the previous one.
// hadPrevious is false on the first update.
func (t *Tracker) Update(region transit.Region) (current, previous transit.Region, hadPrevious bool) {
	previous, hadPrevious = t.current, t.set
	t.current = region.Clamp(t.minSpan, t.maxSpan)
	t.set = true
	return t.current, previous, hadPrevious
}

func (t *Tracker) Region() (transit.Region, bool) {
	return t.current, t.set
}

// Gate decides whether stations are shown at a zoom level.
type Gate struct {
	Threshold float64
}

func NewGate(threshold float64) Gate {
	return Gate{Threshold: threshold}
}

// ShouldShowStations is false once the latitude span reaches the threshold.
func (g Gate) ShouldShowStations(region transit.Region) bool {
	return region.LatSpan < g.Threshold
}
