// Package arrivals resolves arrival estimates for a station, falling back to
// synthetic estimates when live data cannot be obtained.
package arrivals

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/pietrosul/MyBusApp/internal/metrics"
	"github.com/pietrosul/MyBusApp/internal/transit"
)

const (
	minSyntheticMinutes = 1
	maxSyntheticMinutes = 30
	maxSyntheticCount   = 3
)

// LineLookup resolves catalog lines by ID.
type LineLookup interface {
	Line(id string) (transit.Line, bool)
}

type Resolver struct {
	source  transit.ArrivalSource
	lines   LineLookup
	metrics *metrics.Metrics
	logger  *slog.Logger

	randMu sync.Mutex
	rng    *rand.Rand
}

// NewResolver creates a Resolver. lines, rng, m and logger may be nil; a nil
// rng is seeded from the current time.
func NewResolver(source transit.ArrivalSource, lines LineLookup, rng *rand.Rand, m *metrics.Metrics, logger *slog.Logger) *Resolver {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		source:  source,
		lines:   lines,
		metrics: m,
		logger:  logger.With(slog.String("component", "arrival_resolver")),
		rng:     rng,
	}
}

// ArrivalsFor returns one arrival estimate per line serving station. Lines
// the live source has no record for get synthetic estimates, and any failure
// of the live source is answered with synthetic estimates for every line, so
// the result is never an error.
func (r *Resolver) ArrivalsFor(ctx context.Context, station transit.Station) []transit.ArrivalEstimate {
	if r.source != nil {
		estimates, err := r.source.Arrivals(ctx, station.ID)
		if err == nil {
			return r.merge(station, r.enrich(estimates))
		}
		if ctx.Err() == nil && !errors.Is(err, transit.ErrArrivalsUnavailable) {
			r.logger.Warn("live arrivals failed, using synthetic estimates",
				slog.String("station_id", station.ID),
				slog.String("error", err.Error()))
		}
	}

	r.metrics.ObserveArrivalFallback()
	return r.enrich(r.Synthesize(station))
}

// merge appends a synthetic estimate for every line of station that live
// does not mention.
func (r *Resolver) merge(station transit.Station, live []transit.ArrivalEstimate) []transit.ArrivalEstimate {
	covered := make(map[string]struct{}, len(live))
	for _, e := range live {
		covered[e.LineID] = struct{}{}
	}
	var missing []transit.LineRef
	for _, ref := range station.Lines {
		if _, ok := covered[ref.ID]; !ok {
			missing = append(missing, ref)
		}
	}
	if len(missing) == 0 {
		return live
	}

	station.Lines = missing
	return append(live, r.enrich(r.Synthesize(station))...)
}

// enrich fills vehicle types and names from the catalog, derives colors
// from the vehicle type and sorts minutes.
func (r *Resolver) enrich(estimates []transit.ArrivalEstimate) []transit.ArrivalEstimate {
	out := make([]transit.ArrivalEstimate, 0, len(estimates))
	for _, e := range estimates {
		if r.lines != nil {
			if line, ok := r.lines.Line(e.LineID); ok {
				e.VehicleType = line.VehicleType
				if e.LineName == "" {
					e.LineName = line.Name
				}
			}
		}
		e.Color = e.VehicleType.Color()
		if e.Destination == "" {
			e.Destination = transit.PlaceholderDestination
		}
		if e.Minutes == nil {
			e.Minutes = []int{}
		}
		sort.Ints(e.Minutes)
		out = append(out, e)
	}
	return out
}

// Synthesize draws 1 to 3 distinct ascending minute offsets in [1,30] for
// every line serving the station.
func (r *Resolver) Synthesize(station transit.Station) []transit.ArrivalEstimate {
	r.randMu.Lock()
	defer r.randMu.Unlock()

	out := make([]transit.ArrivalEstimate, 0, len(station.Lines))
	for _, ref := range station.Lines {
		count := 1 + r.rng.IntN(maxSyntheticCount)
		seen := make(map[int]struct{}, count)
		minutes := make([]int, 0, count)
		for len(minutes) < count {
			m := minSyntheticMinutes + r.rng.IntN(maxSyntheticMinutes-minSyntheticMinutes+1)
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			minutes = append(minutes, m)
		}
		sort.Ints(minutes)

		out = append(out, transit.ArrivalEstimate{
			LineID:      ref.ID,
			LineName:    ref.Name,
			VehicleType: ref.VehicleType,
			Color:       ref.VehicleType.Color(),
			Destination: transit.PlaceholderDestination,
			Minutes:     minutes,
			Synthetic:   true,
		})
	}
	return out
}
