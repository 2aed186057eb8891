package transit

import "math"

// Region is the visible map area as reported by the map widget.
type Region struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	LatSpan float64 `json:"latSpan"`
	LonSpan float64 `json:"lonSpan"`
}

// BoundingBox is the geographic filter derived from a Region.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Clamp returns the region with both spans clamped to [min, max].
func (r Region) Clamp(min, max float64) Region {
	r.LatSpan = clamp(r.LatSpan, min, max)
	r.LonSpan = clamp(r.LonSpan, min, max)
	return r
}

// Bounds derives the bounding box centered on the region.
func (r Region) Bounds() BoundingBox {
	halfLat := r.LatSpan / 2
	halfLon := r.LonSpan / 2
	return BoundingBox{
		North: r.Lat + halfLat,
		South: r.Lat - halfLat,
		East:  r.Lon + halfLon,
		West:  r.Lon - halfLon,
	}
}

// Valid reports whether the region has finite coordinates and non-negative spans.
func (r Region) Valid() bool {
	return validCoordinate(r.Lat, 90) && validCoordinate(r.Lon, 180) &&
		!math.IsNaN(r.LatSpan) && !math.IsNaN(r.LonSpan) &&
		r.LatSpan >= 0 && r.LonSpan >= 0
}

// Contains reports whether the coordinate lies inside the box. Edges are inclusive.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// Valid reports whether the box is finite and not inverted.
func (b BoundingBox) Valid() bool {
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.South <= b.North && b.West <= b.East
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() LatLng {
	return LatLng{Lat: (b.North + b.South) / 2, Lon: (b.East + b.West) / 2}
}

func clamp(v, min, max float64) float64 {
	if math.IsNaN(v) {
		return min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
