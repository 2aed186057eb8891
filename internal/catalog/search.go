package catalog

import (
	"sort"
	"strings"

	"github.com/pietrosul/MyBusApp/internal/transit"
)

const defaultSearchLimit = 20

// searchTerms normalizes user input into lower-case prefix terms.
func searchTerms(input string) []string {
	terms := strings.Fields(strings.ToLower(input))
	out := terms[:0]
	for _, term := range terms {
		if trimmed := strings.Trim(term, `"'`); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// matches reports whether every term is a prefix of the line name, of the
// line ID or of its vehicle type name.
func matches(line transit.Line, terms []string) bool {
	fields := []string{
		strings.ToLower(line.Name),
		strings.ToLower(line.ID),
		strings.ToLower(line.VehicleType.String()),
	}
	for _, term := range terms {
		hit := false
		for _, f := range fields {
			if strings.HasPrefix(f, term) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// SearchLines returns up to maxCount lines matching input. Exact name
// matches come first, then shorter names, then lexical order, so "1"
// lists line 1 before 10 and 100.
func (manager *Manager) SearchLines(input string, maxCount int) []transit.Line {
	limit := maxCount
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	terms := searchTerms(input)
	if len(terms) == 0 {
		return []transit.Line{}
	}

	manager.mu.RLock()
	found := make([]transit.Line, 0)
	for _, line := range manager.lines {
		if matches(line, terms) {
			found = append(found, line)
		}
	}
	manager.mu.RUnlock()

	exact := strings.Join(terms, " ")
	sort.SliceStable(found, func(i, j int) bool {
		ei := strings.ToLower(found[i].Name) == exact
		ej := strings.ToLower(found[j].Name) == exact
		if ei != ej {
			return ei
		}
		if len(found[i].Name) != len(found[j].Name) {
			return len(found[i].Name) < len(found[j].Name)
		}
		return found[i].Name < found[j].Name
	})

	if len(found) > limit {
		found = found[:limit]
	}
	return found
}
