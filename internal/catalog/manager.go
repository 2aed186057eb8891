// Package catalog owns the loaded transit network: lines, the known station
// universe and its spatial index. A Manager is built once at startup around a
// remote data source or a bulk loader and injected wherever data is needed.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pietrosul/MyBusApp/internal/logging"
	"github.com/pietrosul/MyBusApp/internal/metrics"
	"github.com/pietrosul/MyBusApp/internal/transit"
	"github.com/pietrosul/MyBusApp/internal/utils"
)

// ErrNotReady is returned by queries issued before a successful load.
var ErrNotReady = errors.New("catalog not loaded")

const defaultMaxRemembered = 20000

// Status is the load state of the catalog.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "loading"
	}
}

type Config struct {
	// MaxStations caps bounded queries; 0 disables the cap.
	MaxStations int
	// RefreshInterval reloads the network periodically; 0 disables refresh.
	RefreshInterval time.Duration
	// InitialRegion is primed on load for remote sources.
	InitialRegion transit.Region
	// MaxRemembered caps the stations kept from remote bounded queries; the
	// least recently seen are evicted first. 0 uses a default of 20000.
	MaxRemembered int
}

type Manager struct {
	config  Config
	remote  transit.DataSource
	bulk    transit.BulkLoader
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu            sync.RWMutex
	status        Status
	statusMessage string
	lines         []transit.Line
	linesByID     map[string]int
	stations      map[string]transit.Station
	index         *stationIndex

	// seen orders remembered remote stations by the query that last
	// returned them.
	seen    map[string]uint64
	seq     uint64
	swapSeq uint64

	regionBounds  *transit.Region
	lastUpdated   time.Time

	updateMu     sync.Mutex
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	refreshOnce  sync.Once
	wg           sync.WaitGroup
}

// NewRemote builds a Manager that answers bounded queries from source.
func NewRemote(source transit.DataSource, config Config, m *metrics.Metrics, logger *slog.Logger) *Manager {
	manager := newManager(config, m, logger)
	manager.remote = source
	return manager
}

// NewBulk builds a Manager that loads the whole network from loader and
// answers bounded queries from memory.
func NewBulk(loader transit.BulkLoader, config Config, m *metrics.Metrics, logger *slog.Logger) *Manager {
	manager := newManager(config, m, logger)
	manager.bulk = loader
	return manager
}

func newManager(config Config, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:       config,
		metrics:      m,
		logger:       logger.With(slog.String("component", "catalog")),
		status:       StatusLoading,
		linesByID:    map[string]int{},
		stations:     map[string]transit.Station{},
		seen:         map[string]uint64{},
		index:        newStationIndex(nil),
		shutdownChan: make(chan struct{}),
	}
}

// Load performs the initial load. On failure the catalog moves to
// StatusFailed and keeps the error message; there is no retry.
func (manager *Manager) Load(ctx context.Context) error {
	started := time.Now()
	lines, stations, err := manager.fetch(ctx)
	if err != nil {
		manager.mu.Lock()
		manager.status = StatusFailed
		manager.statusMessage = err.Error()
		manager.mu.Unlock()
		logging.LogError(manager.logger, "Initial catalog load failed", err)
		return err
	}

	manager.swap(lines, stations, false)
	logging.LogOperation(manager.logger, "catalog_loaded",
		slog.Int("lines", len(lines)),
		slog.Int("stations", len(stations)),
		slog.Duration("duration", time.Since(started)))
	return nil
}

// fetch loads lines and stations. Remote sources load lines and the initial
// region concurrently.
func (manager *Manager) fetch(ctx context.Context) ([]transit.Line, []transit.Station, error) {
	if manager.bulk != nil {
		snapshot, err := manager.bulk.LoadAll(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("bulk load failed: %w", err)
		}
		return snapshot.Lines, snapshot.Stations, nil
	}
	if manager.remote == nil {
		return nil, nil, errors.New("no data source configured")
	}

	var lines []transit.Line
	var stations []transit.Station
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lines, err = manager.remote.Lines(gctx)
		if err != nil {
			return fmt.Errorf("loading lines: %w", err)
		}
		return nil
	})
	if manager.config.InitialRegion.Valid() && manager.config.InitialRegion.LatSpan > 0 {
		g.Go(func() error {
			var err error
			stations, err = manager.remote.StationsInBounds(gctx, manager.config.InitialRegion.Bounds())
			if err != nil {
				// The initial region is a warm-up; bounded queries still work without it.
				logging.LogError(manager.logger, "Failed to prime initial region", err)
				stations = nil
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return lines, stations, nil
}

// swap replaces the catalog contents under the write lock. When keepStations
// is set, remembered stations seen since the previous swap survive.
func (manager *Manager) swap(lines []transit.Line, stations []transit.Station, keepStations bool) {
	linesByID := make(map[string]int, len(lines))
	for i, line := range lines {
		linesByID[line.ID] = i
	}

	manager.mu.Lock()
	defer manager.mu.Unlock()

	manager.seq++
	known := make(map[string]transit.Station, len(stations))
	seen := make(map[string]uint64)
	if keepStations {
		for id, s := range manager.stations {
			if manager.seen[id] > manager.swapSeq {
				known[id] = s
				seen[id] = manager.seen[id]
			}
		}
	}
	for _, s := range stations {
		s = s.Normalize()
		if s.HasLocation() {
			known[s.ID] = s
			if manager.bulk == nil {
				seen[s.ID] = manager.seq
			}
		}
	}

	manager.lines = lines
	manager.linesByID = linesByID
	manager.stations = known
	manager.seen = seen
	manager.swapSeq = manager.seq
	if manager.bulk != nil {
		manager.index = newStationIndex(known)
	} else {
		manager.evictLocked()
	}
	manager.regionBounds = ComputeRegionBounds(lines, known)
	manager.status = StatusReady
	manager.statusMessage = ""
	manager.lastUpdated = time.Now()

	manager.metrics.ObserveCatalogLoad(len(lines), len(known), manager.lastUpdated)
}

// Status returns the load state, the failure message if any and the time of
// the last successful load.
func (manager *Manager) Status() (Status, string, time.Time) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return manager.status, manager.statusMessage, manager.lastUpdated
}

// IsRemote reports whether bounded queries go to a remote source.
func (manager *Manager) IsRemote() bool {
	return manager.bulk == nil
}

func (manager *Manager) ready() error {
	if manager.status != StatusReady {
		return ErrNotReady
	}
	return nil
}

// Ready returns nil once the catalog has loaded. Otherwise the error says
// whether the load is still running or failed, and why.
func (manager *Manager) Ready() error {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	switch manager.status {
	case StatusReady:
		return nil
	case StatusFailed:
		return fmt.Errorf("%w: load failed: %s", ErrNotReady, manager.statusMessage)
	default:
		return fmt.Errorf("%w: transit data is loading", ErrNotReady)
	}
}

// Lines returns a copy of every known line, in load order.
func (manager *Manager) Lines() []transit.Line {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	out := make([]transit.Line, len(manager.lines))
	copy(out, manager.lines)
	return out
}

func (manager *Manager) Line(id string) (transit.Line, bool) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	i, ok := manager.linesByID[id]
	if !ok {
		return transit.Line{}, false
	}
	return manager.lines[i], true
}

// Station returns a station from the known universe. For remote sources this
// is the set of stations returned by earlier bounded queries.
func (manager *Manager) Station(id string) (transit.Station, bool) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	s, ok := manager.stations[id]
	return s, ok
}

// Sizes reports the number of known lines and stations.
func (manager *Manager) Sizes() (lines, stations int) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return len(manager.lines), len(manager.stations)
}

// StationsInBounds returns the known stations inside box, nearest to the box
// center first and capped at MaxStations. Stations returned by a remote
// source are remembered for later lookups by ID.
func (manager *Manager) StationsInBounds(ctx context.Context, box transit.BoundingBox) ([]transit.Station, error) {
	if !box.Valid() {
		return nil, fmt.Errorf("invalid bounding box %+v", box)
	}

	manager.mu.RLock()
	err := manager.ready()
	manager.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var found []transit.Station
	if manager.remote != nil && manager.bulk == nil {
		found, err = manager.remoteStations(ctx, box)
		if err != nil {
			manager.metrics.ObserveStationFetch(metrics.FetchError)
			return nil, err
		}
	} else {
		manager.mu.RLock()
		found = manager.index.Search(box)
		manager.mu.RUnlock()
	}

	found = nearestFirst(found, box.Center(), manager.config.MaxStations)
	if len(found) == 0 {
		manager.metrics.ObserveStationFetch(metrics.FetchEmpty)
	} else {
		manager.metrics.ObserveStationFetch(metrics.FetchOK)
	}
	return found, nil
}

func (manager *Manager) remoteStations(ctx context.Context, box transit.BoundingBox) ([]transit.Station, error) {
	raw, err := manager.remote.StationsInBounds(ctx, box)
	if err != nil {
		return nil, err
	}

	found := make([]transit.Station, 0, len(raw))
	for _, s := range raw {
		s = s.Normalize()
		if !s.HasLocation() || !box.Contains(s.Lat, s.Lon) {
			continue
		}
		found = append(found, s)
	}

	manager.mu.Lock()
	manager.seq++
	for _, s := range found {
		manager.stations[s.ID] = s
		manager.seen[s.ID] = manager.seq
	}
	manager.evictLocked()
	manager.mu.Unlock()
	return found, nil
}

// evictLocked drops the least recently seen remote stations once the
// remembered set outgrows its cap, down to nine tenths of it. Callers hold
// the write lock.
func (manager *Manager) evictLocked() {
	limit := manager.config.MaxRemembered
	if limit <= 0 {
		limit = defaultMaxRemembered
	}
	if len(manager.stations) <= limit {
		return
	}

	ids := make([]string, 0, len(manager.stations))
	for id := range manager.stations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := manager.seen[ids[i]], manager.seen[ids[j]]
		if si != sj {
			return si < sj
		}
		return ids[i] < ids[j]
	})

	target := max(1, limit*9/10)
	for _, id := range ids[:len(ids)-target] {
		delete(manager.stations, id)
		delete(manager.seen, id)
	}
}

// nearestFirst orders stations by distance to center, ties by ID, and keeps
// at most max of them when max > 0.
func nearestFirst(stations []transit.Station, center transit.LatLng, max int) []transit.Station {
	if stations == nil {
		return []transit.Station{}
	}
	distances := make(map[string]float64, len(stations))
	for _, s := range stations {
		distances[s.ID] = utils.Distance(center.Lat, center.Lon, s.Lat, s.Lon)
	}
	sort.SliceStable(stations, func(i, j int) bool {
		di, dj := distances[stations[i].ID], distances[stations[j].ID]
		if di != dj {
			return di < dj
		}
		return stations[i].ID < stations[j].ID
	})
	if max > 0 && len(stations) > max {
		stations = stations[:max]
	}
	return stations
}

// Arrivals queries live arrivals for a station. Bulk sources have none.
func (manager *Manager) Arrivals(ctx context.Context, stationID string) ([]transit.ArrivalEstimate, error) {
	if manager.remote == nil {
		return nil, transit.ErrArrivalsUnavailable
	}
	return manager.remote.Arrivals(ctx, stationID)
}

// LineVehicles returns live positions when the source provides them.
func (manager *Manager) LineVehicles(ctx context.Context, lineID string) ([]transit.Vehicle, error) {
	if _, ok := manager.Line(lineID); !ok {
		return nil, transit.ErrNotFound
	}
	source, ok := manager.remote.(transit.VehicleSource)
	if !ok {
		return nil, transit.ErrVehiclesUnavailable
	}
	return source.LineVehicles(ctx, lineID)
}

// LineDetails describes a line with its stations. Sources that cannot
// describe a line are answered from the known universe, sorted by name.
func (manager *Manager) LineDetails(ctx context.Context, lineID string) (*transit.LineDetails, error) {
	line, ok := manager.Line(lineID)
	if !ok {
		return nil, transit.ErrNotFound
	}
	if source, ok := manager.remote.(transit.LineDetailer); ok {
		details, err := source.LineDetails(ctx, lineID)
		if err != nil {
			return nil, err
		}
		if len(details.Line.Shape) == 0 {
			details.Line.Shape = line.Shape
		}
		return details, nil
	}

	manager.mu.RLock()
	stations := make([]transit.Station, 0)
	for _, s := range manager.stations {
		for _, ref := range s.Lines {
			if ref.ID == lineID {
				stations = append(stations, s)
				break
			}
		}
	}
	manager.mu.RUnlock()

	sort.Slice(stations, func(i, j int) bool {
		if stations[i].Name != stations[j].Name {
			return stations[i].Name < stations[j].Name
		}
		return stations[i].ID < stations[j].ID
	})
	return &transit.LineDetails{Line: line, Stations: stations}, nil
}

// RegionBounds returns the area covered by the loaded network.
func (manager *Manager) RegionBounds() (transit.Region, bool) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if manager.regionBounds == nil {
		return transit.Region{}, false
	}
	return *manager.regionBounds, true
}
