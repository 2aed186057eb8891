package viewport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pietrosul/MyBusApp/internal/arrivals"
	"github.com/pietrosul/MyBusApp/internal/clock"
	"github.com/pietrosul/MyBusApp/internal/logging"
	"github.com/pietrosul/MyBusApp/internal/transit"
)

var (
	ErrInvalidRegion = errors.New("invalid region")
	ErrClosed        = errors.New("session closed")
)

// State of the station layer of a session.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateReady
	StateHidden
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	case StateHidden:
		return "hidden"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event kinds published to subscribers.
const (
	EventStations = "stations"
	EventArrivals = "arrivals"
)

const subscriberBuffer = 8

// StationsView is what the map shows on its station layer.
type StationsView struct {
	State    State               `json:"state"`
	Region   transit.Region      `json:"region"`
	Bounds   transit.BoundingBox `json:"bounds"`
	Stations []transit.Station   `json:"stations"`
	Sequence uint64              `json:"sequence"`
}

// ArrivalsView is the content of the selected station's popup.
// StationID is empty when nothing is selected.
type ArrivalsView struct {
	StationID   string                    `json:"stationId"`
	StationName string                    `json:"stationName"`
	Loading     bool                      `json:"loading"`
	Arrivals    []transit.ArrivalEstimate `json:"arrivals"`
}

type Event struct {
	Kind     string
	Stations *StationsView
	Arrivals *ArrivalsView
}

// StationLookup resolves stations by ID outside the displayed set.
type StationLookup interface {
	Station(id string) (transit.Station, bool)
}

type Config struct {
	VisibilityThreshold float64
	MinSpan             float64
	MaxSpan             float64
	DebounceWindow      time.Duration
	FetchTimeout        time.Duration
}

// Session is the map state of one client. Region changes and selections are
// serialized by the session mutex.
type Session struct {
	ID string

	config    Config
	fetcher   transit.StationFetcher
	stations  StationLookup
	selection *arrivals.Selection
	clock     clock.Clock
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	tracker     *Tracker
	gate        Gate
	debouncer   *Debouncer
	state       State
	displayed   []transit.Station
	requestSeq  uint64
	fetchCancel context.CancelFunc
	arrivals    ArrivalsView
	subscribers map[int]chan Event
	nextSub     int
	lastActive  time.Time
	closed      bool
}

// NewSession creates an idle session. stations may be nil.
func NewSession(id string, config Config, fetcher transit.StationFetcher, stations StationLookup, resolver *arrivals.Resolver, c clock.Clock, logger *slog.Logger) *Session {
	if c == nil {
		c = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:          id,
		config:      config,
		fetcher:     fetcher,
		stations:    stations,
		selection:   arrivals.NewSelection(resolver),
		clock:       c,
		logger:      logger.With(slog.String("component", "viewport_session"), slog.String("session_id", id)),
		ctx:         ctx,
		cancel:      cancel,
		tracker:     NewTracker(config.MinSpan, config.MaxSpan),
		gate:        NewGate(config.VisibilityThreshold),
		debouncer:   NewDebouncer(c, config.DebounceWindow),
		state:       StateIdle,
		displayed:   []transit.Station{},
		arrivals:    ArrivalsView{Arrivals: []transit.ArrivalEstimate{}},
		subscribers: map[int]chan Event{},
		lastActive:  c.Now(),
	}
}

// UpdateRegion records a region change. Zoomed too far out, the station
// layer is hidden and emptied at once. Zooming out clears the layer before
// the debounced fetch for the new bounds is scheduled.
func (s *Session) UpdateRegion(region transit.Region) (StationsView, error) {
	if !region.Valid() {
		return StationsView{}, ErrInvalidRegion
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StationsView{}, ErrClosed
	}
	s.lastActive = s.clock.Now()

	current, previous, hadPrevious := s.tracker.Update(region)
	s.requestSeq++

	if !s.gate.ShouldShowStations(current) {
		s.debouncer.Cancel()
		s.cancelFetchLocked()
		s.displayed = []transit.Station{}
		s.state = StateHidden
		return s.publishStationsLocked(), nil
	}

	if hadPrevious && current.LatSpan > previous.LatSpan {
		s.displayed = []transit.Station{}
	}

	seq := s.requestSeq
	box := current.Bounds()
	s.state = StateFetching
	s.debouncer.Trigger(func() {
		s.fetch(seq, box)
	})
	return s.publishStationsLocked(), nil
}

// fetch runs the bounded query for request seq. Results of superseded
// requests are dropped; a failed query empties the layer.
func (s *Session) fetch(seq uint64, box transit.BoundingBox) {
	s.mu.Lock()
	if s.closed || seq != s.requestSeq {
		s.mu.Unlock()
		return
	}
	s.cancelFetchLocked()
	ctx, cancel := context.WithTimeout(s.ctx, s.config.FetchTimeout)
	s.fetchCancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer cancel()

	found, err := s.fetcher.StationsInBounds(ctx, box)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.requestSeq {
		return
	}
	s.fetchCancel = nil

	if err != nil {
		logging.LogError(s.logger, "Station fetch failed", err,
			slog.Float64("north", box.North),
			slog.Float64("south", box.South),
			slog.Float64("east", box.East),
			slog.Float64("west", box.West))
		found = nil
	}

	displayed := make([]transit.Station, 0, len(found))
	for _, st := range found {
		if st.HasLocation() && box.Contains(st.Lat, st.Lon) {
			displayed = append(displayed, st)
		}
	}
	s.displayed = displayed
	s.state = StateReady
	s.publishStationsLocked()
}

func (s *Session) cancelFetchLocked() {
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
	}
}

// Select opens the popup of a station and starts its arrival lookup. A
// loading view is published first; the result replaces it unless another
// selection happened meanwhile.
func (s *Session) Select(stationID string) (ArrivalsView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ArrivalsView{}, ErrClosed
	}
	s.lastActive = s.clock.Now()

	station, ok := s.findStationLocked(stationID)
	if !ok {
		return ArrivalsView{}, fmt.Errorf("station %q: %w", stationID, transit.ErrNotFound)
	}

	s.arrivals = ArrivalsView{
		StationID:   station.ID,
		StationName: station.Name,
		Loading:     true,
		Arrivals:    []transit.ArrivalEstimate{},
	}
	view := s.publishArrivalsLocked()
	s.selection.Select(s.ctx, station, s.deliverArrivals)
	return view, nil
}

func (s *Session) deliverArrivals(token uint64, estimates []transit.ArrivalEstimate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.selection.Current(token) {
		return
	}
	if estimates == nil {
		estimates = []transit.ArrivalEstimate{}
	}
	s.arrivals.Loading = false
	s.arrivals.Arrivals = estimates
	s.publishArrivalsLocked()
}

// Deselect closes the popup and drops any in-flight lookup.
func (s *Session) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.lastActive = s.clock.Now()
	s.selection.Clear()
	s.arrivals = ArrivalsView{Arrivals: []transit.ArrivalEstimate{}}
	s.publishArrivalsLocked()
}

func (s *Session) findStationLocked(id string) (transit.Station, bool) {
	for _, st := range s.displayed {
		if st.ID == id {
			return st, true
		}
	}
	if s.stations != nil {
		return s.stations.Station(id)
	}
	return transit.Station{}, false
}

// Stations returns the current station layer.
func (s *Session) Stations() StationsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stationsViewLocked()
}

// Arrivals returns the current popup content.
func (s *Session) Arrivals() ArrivalsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arrivalsViewLocked()
}

func (s *Session) stationsViewLocked() StationsView {
	region, _ := s.tracker.Region()
	stations := make([]transit.Station, len(s.displayed))
	copy(stations, s.displayed)
	return StationsView{
		State:    s.state,
		Region:   region,
		Bounds:   region.Bounds(),
		Stations: stations,
		Sequence: s.requestSeq,
	}
}

func (s *Session) arrivalsViewLocked() ArrivalsView {
	view := s.arrivals
	view.Arrivals = make([]transit.ArrivalEstimate, len(s.arrivals.Arrivals))
	copy(view.Arrivals, s.arrivals.Arrivals)
	return view
}

func (s *Session) publishStationsLocked() StationsView {
	view := s.stationsViewLocked()
	s.broadcastLocked(Event{Kind: EventStations, Stations: &view})
	return view
}

func (s *Session) publishArrivalsLocked() ArrivalsView {
	view := s.arrivalsViewLocked()
	s.broadcastLocked(Event{Kind: EventArrivals, Arrivals: &view})
	return view
}

// broadcastLocked never blocks: a full subscriber loses its oldest event.
func (s *Session) broadcastLocked(ev Event) {
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of session events starting with the current
// views, and a function that unsubscribes. The channel is closed on
// unsubscribe or when the session closes.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.lastActive = s.clock.Now()

	stations := s.stationsViewLocked()
	arrivalsView := s.arrivalsViewLocked()
	ch <- Event{Kind: EventStations, Stations: &stations}
	ch <- Event{Kind: EventArrivals, Arrivals: &arrivalsView}

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
			s.lastActive = s.clock.Now()
		})
	}
}

// IdleSince reports when the session was last used. Sessions with live
// subscribers are never idle.
func (s *Session) IdleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscribers) > 0 {
		return time.Time{}, false
	}
	return s.lastActive, true
}

// Close stops the debouncer, cancels in-flight work and closes every
// subscriber channel. Safe to call multiple times.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.debouncer.Stop()
	s.cancelFetchLocked()
	s.selection.Clear()
	s.cancel()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.selection.Wait()
}
