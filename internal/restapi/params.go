package restapi

import (
	"log/slog"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pietrosul/MyBusApp/internal/clock"
)

func (api *RestAPI) logger() *slog.Logger {
	if api.Application != nil && api.Logger != nil {
		return api.Logger
	}
	return slog.Default()
}

func (api *RestAPI) clock() clock.Clock {
	if api.Application != nil && api.Clock != nil {
		return api.Clock
	}
	return clock.RealClock{}
}

// floatParams parses the named query parameters as finite floats. It
// reports which names are present and records an error for each
// malformed one.
type floatParams struct {
	query  url.Values
	values map[string]float64
	errors map[string][]string
}

func newFloatParams(query url.Values) *floatParams {
	return &floatParams{query: query, values: map[string]float64{}, errors: map[string][]string{}}
}

// has reports whether every name is present in the query.
func (p *floatParams) has(names ...string) bool {
	for _, name := range names {
		if strings.TrimSpace(p.query.Get(name)) == "" {
			return false
		}
	}
	return true
}

func (p *floatParams) get(name string) float64 {
	if v, ok := p.values[name]; ok {
		return v
	}
	raw := strings.TrimSpace(p.query.Get(name))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.errors[name] = append(p.errors[name], "must be a finite number")
		return 0
	}
	p.values[name] = v
	return v
}

func (p *floatParams) require(name string, min, max float64) float64 {
	v := p.get(name)
	if _, ok := p.values[name]; ok && (v < min || v > max) {
		p.errors[name] = append(p.errors[name], "out of range")
	}
	return v
}

func (p *floatParams) valid() bool {
	return len(p.errors) == 0
}

// parseLimit reads a positive integer parameter, falling back to def.
func parseLimit(query url.Values, name string, def, max int) (int, bool) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if max > 0 && n > max {
		n = max
	}
	return n, true
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
