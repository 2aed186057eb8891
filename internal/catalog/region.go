package catalog

import "github.com/pietrosul/MyBusApp/internal/transit"

// ComputeRegionBounds calculates the area covered by the network from line
// shapes and station coordinates. Returns nil if there is nothing to cover.
func ComputeRegionBounds(lines []transit.Line, stations map[string]transit.Station) *transit.Region {
	var minLat, maxLat, minLon, maxLon float64
	first := true

	extend := func(lat, lon float64) {
		if first {
			minLat, maxLat = lat, lat
			minLon, maxLon = lon, lon
			first = false
			return
		}
		if lat < minLat {
			minLat = lat
		}
		if lat > maxLat {
			maxLat = lat
		}
		if lon < minLon {
			minLon = lon
		}
		if lon > maxLon {
			maxLon = lon
		}
	}

	for _, line := range lines {
		for _, p := range line.Shape {
			extend(p.Lat, p.Lon)
		}
	}
	for _, s := range stations {
		if s.HasLocation() {
			extend(s.Lat, s.Lon)
		}
	}

	if first {
		return nil
	}
	return &transit.Region{
		Lat:     (minLat + maxLat) / 2,
		Lon:     (minLon + maxLon) / 2,
		LatSpan: maxLat - minLat,
		LonSpan: maxLon - minLon,
	}
}
