// Package overpass bulk loads a transit network from OpenStreetMap through
// an Overpass API endpoint.
package overpass

import (
	"fmt"
	"strings"
	"time"
)

// routeKinds are the OSM route values loaded as lines.
var routeKinds = []string{"bus", "tram", "trolleybus", "subway"}

// BuildQuery returns the Overpass QL query selecting route relations inside
// the named administrative area, with their stop and platform nodes.
func BuildQuery(area string, timeout time.Duration) string {
	seconds := int(timeout.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	escaped := strings.ReplaceAll(area, `"`, `\"`)

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n", seconds)
	fmt.Fprintf(&b, "area[\"name\"=\"%s\"][\"boundary\"=\"administrative\"]->.searchArea;\n", escaped)
	fmt.Fprintf(&b, "relation[\"type\"=\"route\"][\"route\"~\"^(%s)$\"](area.searchArea)->.routes;\n", strings.Join(routeKinds, "|"))
	b.WriteString(".routes out body geom;\n")
	b.WriteString("node(r.routes)->.stops;\n")
	b.WriteString(".stops out body;\n")
	return b.String()
}
