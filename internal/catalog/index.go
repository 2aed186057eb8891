package catalog

import (
	"github.com/tidwall/rtree"

	"github.com/pietrosul/MyBusApp/internal/transit"
)

// stationIndex is an R-tree over station coordinates, keyed lon/lat.
type stationIndex struct {
	tree rtree.RTreeG[transit.Station]
}

func newStationIndex(stations map[string]transit.Station) *stationIndex {
	idx := &stationIndex{}
	for _, s := range stations {
		if !s.HasLocation() {
			continue
		}
		p := [2]float64{s.Lon, s.Lat}
		idx.tree.Insert(p, p, s)
	}
	return idx
}

func (idx *stationIndex) Len() int {
	return idx.tree.Len()
}

// Search returns the stations inside box. Edges are inclusive.
func (idx *stationIndex) Search(box transit.BoundingBox) []transit.Station {
	found := make([]transit.Station, 0)
	idx.tree.Search(
		[2]float64{box.West, box.South},
		[2]float64{box.East, box.North},
		func(_, _ [2]float64, s transit.Station) bool {
			found = append(found, s)
			return true
		},
	)
	return found
}
