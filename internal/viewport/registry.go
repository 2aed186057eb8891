package viewport

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pietrosul/MyBusApp/internal/arrivals"
	"github.com/pietrosul/MyBusApp/internal/clock"
	"github.com/pietrosul/MyBusApp/internal/logging"
	"github.com/pietrosul/MyBusApp/internal/metrics"
	"github.com/pietrosul/MyBusApp/internal/transit"
)

// Registry owns the open sessions and evicts idle ones.
type Registry struct {
	config      Config
	idleTimeout time.Duration
	fetcher     transit.StationFetcher
	stations    StationLookup
	resolver    *arrivals.Resolver
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	cleanupOnce  sync.Once
	wg           sync.WaitGroup
}

func NewRegistry(config Config, idleTimeout time.Duration, fetcher transit.StationFetcher, stations StationLookup,
	resolver *arrivals.Resolver, c clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Registry {
	if c == nil {
		c = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		config:       config,
		idleTimeout:  idleTimeout,
		fetcher:      fetcher,
		stations:     stations,
		resolver:     resolver,
		clock:        c,
		metrics:      m,
		logger:       logger,
		sessions:     map[string]*Session{},
		shutdownChan: make(chan struct{}),
	}
}

// Create opens a session and schedules the first fetch for initial, or for
// DefaultRegion when initial is nil.
func (r *Registry) Create(initial *transit.Region) (*Session, error) {
	region := DefaultRegion
	if initial != nil {
		region = *initial
	}
	if !region.Valid() {
		return nil, ErrInvalidRegion
	}

	session := NewSession(uuid.NewString(), r.config, r.fetcher, r.stations, r.resolver, r.clock, r.logger)
	if _, err := session.UpdateRegion(region); err != nil {
		session.Close()
		return nil, err
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	count := len(r.sessions)
	r.mu.Unlock()

	r.setActive(count)
	r.logger.Debug("session created", slog.String("session_id", session.ID))
	return session, nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove closes and forgets a session. It reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return false
	}
	session.Close()
	r.setActive(count)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictIdle closes sessions unused for longer than the idle timeout and
// returns how many were evicted.
func (r *Registry) EvictIdle() int {
	if r.idleTimeout <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	var stale []*Session
	for id, session := range r.sessions {
		if since, idle := session.IdleSince(); idle && since.Before(cutoff) {
			stale = append(stale, session)
			delete(r.sessions, id)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	for _, session := range stale {
		session.Close()
	}
	if len(stale) > 0 {
		r.setActive(count)
		logging.LogOperation(r.logger, "idle_sessions_evicted", slog.Int("count", len(stale)))
	}
	return len(stale)
}

// StartCleanup evicts idle sessions every interval until Shutdown.
func (r *Registry) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.cleanupOnce.Do(func() {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r.EvictIdle()
				case <-r.shutdownChan:
					return
				}
			}
		}()
	})
}

// Shutdown stops the cleanup goroutine and closes every session.
func (r *Registry) Shutdown() {
	r.shutdownOnce.Do(func() {
		close(r.shutdownChan)
	})
	r.wg.Wait()

	r.mu.Lock()
	sessions := r.sessions
	r.sessions = map[string]*Session{}
	r.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	r.setActive(0)
}

func (r *Registry) setActive(n int) {
	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(n))
	}
}
