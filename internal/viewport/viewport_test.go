package viewport

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pietrosul/MyBusApp/internal/arrivals"
	"github.com/pietrosul/MyBusApp/internal/clock"
	"github.com/pietrosul/MyBusApp/internal/metrics"
	"github.com/pietrosul/MyBusApp/internal/transit"
)

const window = 250 * time.Millisecond

var (
	testConfig = Config{
		VisibilityThreshold: 0.1,
		MinSpan:             0.002,
		MaxSpan:             2.0,
		DebounceWindow:      window,
	}
	bus105 = transit.LineRef{ID: "L105", Name: "105", VehicleType: transit.Bus}

	unirii  = transit.Station{ID: "unirii", Name: "Piața Unirii", Lat: 44.43, Lon: 26.10, Lines: []transit.LineRef{bus105}}
	ghencea = transit.Station{ID: "ghencea", Name: "Ghencea", Lat: 44.39, Lon: 26.05, Lines: []transit.LineRef{bus105}}

	// center region: N 44.44 S 44.42 E 26.11 W 26.09
	center = transit.Region{Lat: 44.43, Lon: 26.10, LatSpan: 0.02, LonSpan: 0.02}
	south  = transit.Region{Lat: 44.39, Lon: 26.05, LatSpan: 0.02, LonSpan: 0.02}
)

type fakeFetcher struct {
	mu        sync.Mutex
	universe  []transit.Station
	err       error
	boxes     []transit.BoundingBox
	blockNext bool
	started   chan struct{}
	release   chan struct{}
}

func newFakeFetcher(stations ...transit.Station) *fakeFetcher {
	return &fakeFetcher{universe: stations, started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (f *fakeFetcher) StationsInBounds(ctx context.Context, box transit.BoundingBox) ([]transit.Station, error) {
	f.mu.Lock()
	f.boxes = append(f.boxes, box)
	block := f.blockNext
	f.blockNext = false
	err := f.err
	universe := f.universe
	f.mu.Unlock()

	if block {
		f.started <- struct{}{}
		<-f.release
	}
	if err != nil {
		return nil, err
	}
	// Deliberately sloppy: returns the whole universe and lets the session filter.
	return universe, nil
}

func (f *fakeFetcher) calls() []transit.BoundingBox {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transit.BoundingBox, len(f.boxes))
	copy(out, f.boxes)
	return out
}

type lookup map[string]transit.Station

func (l lookup) Station(id string) (transit.Station, bool) {
	s, ok := l[id]
	return s, ok
}

type staticArrivals struct{}

func (staticArrivals) Arrivals(context.Context, string) ([]transit.ArrivalEstimate, error) {
	return []transit.ArrivalEstimate{{LineID: "L105", LineName: "105", Minutes: []int{4, 11}}}, nil
}

func newTestSession(t *testing.T, fetcher transit.StationFetcher) (*Session, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	resolver := arrivals.NewResolver(staticArrivals{}, nil, rand.New(rand.NewPCG(1, 2)), nil, nil)
	s := NewSession("test", testConfig, fetcher, lookup{"ghencea": ghencea}, resolver, clk, nil)
	t.Cleanup(s.Close)
	return s, clk
}

func ids(stations []transit.Station) []string {
	out := make([]string, 0, len(stations))
	for _, s := range stations {
		out = append(out, s.ID)
	}
	return out
}

func nextEvent(t *testing.T, ch <-chan Event, kind string) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "channel closed")
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestTracker_Clamps(t *testing.T) {
	tracker := NewTracker(0.002, 2.0)
	_, ok := tracker.Region()
	assert.False(t, ok)

	current, _, had := tracker.Update(transit.Region{Lat: 44.4, Lon: 26.1, LatSpan: 0.0001, LonSpan: 5})
	assert.False(t, had)
	assert.Equal(t, 0.002, current.LatSpan)
	assert.Equal(t, 2.0, current.LonSpan)

	_, previous, had := tracker.Update(center)
	assert.True(t, had)
	assert.Equal(t, current, previous)
}

func TestGate(t *testing.T) {
	gate := NewGate(0.1)
	tests := []struct {
		span float64
		want bool
	}{
		{0.02, true},
		{0.0999, true},
		{0.1, false},
		{0.25, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gate.ShouldShowStations(transit.Region{LatSpan: tt.span}), "span %v", tt.span)
	}
}

func TestDebouncer(t *testing.T) {
	clk := clock.NewMockClock(time.Unix(0, 0))
	d := NewDebouncer(clk, window)

	var got []int
	for i := 1; i <= 5; i++ {
		d.Trigger(func() { got = append(got, i) })
		clk.Advance(window / 2)
	}
	assert.Empty(t, got, "nothing fires while triggers keep arriving")
	assert.True(t, d.Pending())

	clk.Advance(window / 2)
	assert.Equal(t, []int{5}, got)
	assert.False(t, d.Pending())

	d.Trigger(func() { got = append(got, 6) })
	d.Cancel()
	clk.Advance(window)
	assert.Equal(t, []int{5}, got)

	d.Trigger(func() { got = append(got, 7) })
	d.Stop()
	d.Trigger(func() { got = append(got, 8) })
	clk.Advance(window)
	assert.Equal(t, []int{5}, got)
	assert.Equal(t, 0, clk.PendingTimers())
}

func TestDebouncer_RealClock(t *testing.T) {
	d := NewDebouncer(clock.RealClock{}, 10*time.Millisecond)
	fired := make(chan int, 3)
	for i := 0; i < 3; i++ {
		d.Trigger(func() { fired <- i })
	}
	select {
	case v := <-fired:
		assert.Equal(t, 2, v)
	case <-time.After(time.Second):
		t.Fatal("debounced call never fired")
	}
	d.Stop()
}

func TestSession_FetchAfterQuietWindow(t *testing.T) {
	fetcher := newFakeFetcher(unirii, ghencea)
	s, clk := newTestSession(t, fetcher)

	view, err := s.UpdateRegion(center)
	require.NoError(t, err)
	assert.Equal(t, StateFetching, view.State)
	assert.Empty(t, view.Stations)

	clk.Advance(window - time.Millisecond)
	assert.Empty(t, fetcher.calls())

	clk.Advance(time.Millisecond)
	require.Len(t, fetcher.calls(), 1)
	assert.Equal(t, center.Bounds(), fetcher.calls()[0])

	view = s.Stations()
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, []string{"unirii"}, ids(view.Stations), "only stations inside the bounds are displayed")
}

func TestSession_DebounceUsesLastBounds(t *testing.T) {
	fetcher := newFakeFetcher(unirii, ghencea)
	s, clk := newTestSession(t, fetcher)

	for i := 0; i < 10; i++ {
		r := center
		r.Lat += float64(i) * 0.0001
		_, err := s.UpdateRegion(r)
		require.NoError(t, err)
		clk.Advance(window / 5)
	}
	_, err := s.UpdateRegion(south)
	require.NoError(t, err)
	clk.Advance(window)

	calls := fetcher.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, south.Bounds(), calls[0])
	assert.Equal(t, []string{"ghencea"}, ids(s.Stations().Stations))
}

func TestSession_GateHidesStations(t *testing.T) {
	fetcher := newFakeFetcher(unirii, ghencea)
	s, clk := newTestSession(t, fetcher)

	_, err := s.UpdateRegion(center)
	require.NoError(t, err)
	clk.Advance(window)
	require.NotEmpty(t, s.Stations().Stations)

	view, err := s.UpdateRegion(transit.Region{Lat: 44.43, Lon: 26.10, LatSpan: 0.25, LonSpan: 0.25})
	require.NoError(t, err)
	assert.Equal(t, StateHidden, view.State)
	assert.Equal(t, []transit.Station{}, view.Stations)

	clk.Advance(window)
	assert.Len(t, fetcher.calls(), 1, "no fetch while hidden")
}

func TestSession_GateCancelsPendingFetch(t *testing.T) {
	fetcher := newFakeFetcher(unirii)
	s, clk := newTestSession(t, fetcher)

	_, err := s.UpdateRegion(center)
	require.NoError(t, err)
	_, err = s.UpdateRegion(transit.Region{Lat: 44.43, Lon: 26.10, LatSpan: 0.5, LonSpan: 0.5})
	require.NoError(t, err)
	clk.Advance(window)

	assert.Empty(t, fetcher.calls())
	assert.Equal(t, StateHidden, s.Stations().State)
}

func TestSession_ZoomOutClearsBeforeFetch(t *testing.T) {
	fetcher := newFakeFetcher(unirii)
	s, clk := newTestSession(t, fetcher)

	_, err := s.UpdateRegion(center)
	require.NoError(t, err)
	clk.Advance(window)
	require.Len(t, s.Stations().Stations, 1)

	zoomedIn := center
	zoomedIn.LatSpan = 0.01
	view, err := s.UpdateRegion(zoomedIn)
	require.NoError(t, err)
	assert.Len(t, view.Stations, 1, "zooming in keeps the current layer until the fetch lands")

	zoomedOut := center
	zoomedOut.LatSpan = 0.05
	view, err = s.UpdateRegion(zoomedOut)
	require.NoError(t, err)
	assert.Empty(t, view.Stations)
	assert.Equal(t, StateFetching, view.State)

	clk.Advance(window)
	assert.Len(t, s.Stations().Stations, 1)
}

func TestSession_FetchFailureEmptiesLayer(t *testing.T) {
	fetcher := newFakeFetcher(unirii)
	s, clk := newTestSession(t, fetcher)

	_, err := s.UpdateRegion(center)
	require.NoError(t, err)
	clk.Advance(window)
	require.Len(t, s.Stations().Stations, 1)

	fetcher.mu.Lock()
	fetcher.err = errors.New("upstream 502")
	fetcher.mu.Unlock()

	moved := center
	moved.Lon += 0.001
	_, err = s.UpdateRegion(moved)
	require.NoError(t, err)
	clk.Advance(window)

	view := s.Stations()
	assert.Equal(t, StateReady, view.State)
	assert.Empty(t, view.Stations)
}

func TestSession_StaleResultIsDropped(t *testing.T) {
	fetcher := newFakeFetcher(unirii, ghencea)
	fetcher.blockNext = true
	s, clk := newTestSession(t, fetcher)

	_, err := s.UpdateRegion(center)
	require.NoError(t, err)

	advanced := make(chan struct{})
	go func() {
		clk.Advance(window)
		close(advanced)
	}()
	<-fetcher.started

	_, err = s.UpdateRegion(south)
	require.NoError(t, err)
	close(fetcher.release)
	<-advanced

	view := s.Stations()
	assert.Equal(t, StateFetching, view.State)
	assert.Empty(t, view.Stations, "result of the superseded request is not applied")

	clk.Advance(window)
	view = s.Stations()
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, []string{"ghencea"}, ids(view.Stations))
}

func TestSession_InvalidRegion(t *testing.T) {
	s, _ := newTestSession(t, newFakeFetcher())
	_, err := s.UpdateRegion(transit.Region{Lat: 200, Lon: 26, LatSpan: 0.01, LonSpan: 0.01})
	assert.ErrorIs(t, err, ErrInvalidRegion)
}

func TestSession_SelectPublishesLoadingThenArrivals(t *testing.T) {
	fetcher := newFakeFetcher(unirii)
	s, clk := newTestSession(t, fetcher)
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	_, err := s.UpdateRegion(center)
	require.NoError(t, err)
	clk.Advance(window)

	view, err := s.Select("unirii")
	require.NoError(t, err)
	assert.True(t, view.Loading)
	assert.Equal(t, "Piața Unirii", view.StationName)

	ev := nextEvent(t, events, EventArrivals) // initial empty view
	assert.Empty(t, ev.Arrivals.StationID)
	ev = nextEvent(t, events, EventArrivals)
	assert.True(t, ev.Arrivals.Loading)
	ev = nextEvent(t, events, EventArrivals)
	assert.False(t, ev.Arrivals.Loading)
	require.Len(t, ev.Arrivals.Arrivals, 1)
	assert.Equal(t, []int{4, 11}, ev.Arrivals.Arrivals[0].Minutes)
	assert.Equal(t, "unirii", s.Arrivals().StationID)

	_, err = s.Select("ghencea")
	require.NoError(t, err, "stations outside the layer are looked up in the catalog")

	_, err = s.Select("nope")
	assert.ErrorIs(t, err, transit.ErrNotFound)

	s.Deselect()
	assert.Empty(t, s.Arrivals().StationID)
}

func TestSession_SlowSubscriberKeepsLatest(t *testing.T) {
	s, _ := newTestSession(t, newFakeFetcher())
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	var last StationsView
	for i := 0; i < 3*subscriberBuffer; i++ {
		r := center
		r.Lon += float64(i) * 0.0001
		v, err := s.UpdateRegion(r)
		require.NoError(t, err)
		last = v
	}

	var got []Event
	for len(events) > 0 {
		got = append(got, <-events)
	}
	require.Len(t, got, subscriberBuffer)
	final := got[len(got)-1]
	require.Equal(t, EventStations, final.Kind)
	assert.Equal(t, last.Sequence, final.Stations.Sequence)
}

func TestSession_Close(t *testing.T) {
	fetcher := newFakeFetcher(unirii)
	s, clk := newTestSession(t, fetcher)
	events, _ := s.Subscribe()

	_, err := s.UpdateRegion(center)
	require.NoError(t, err)
	s.Close()
	s.Close()

	clk.Advance(window)
	assert.Empty(t, fetcher.calls(), "pending fetch never fires after close")

	for range events {
	}
	_, err = s.UpdateRegion(center)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Select("unirii")
	assert.ErrorIs(t, err, ErrClosed)

	closed, _ := s.Subscribe()
	_, ok := <-closed
	assert.False(t, ok)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "hidden", StateHidden.String())
	b, err := StateHidden.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "hidden", string(b))
}

func newTestRegistry(t *testing.T, fetcher transit.StationFetcher, m *metrics.Metrics) (*Registry, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	resolver := arrivals.NewResolver(nil, nil, rand.New(rand.NewPCG(3, 4)), nil, nil)
	r := NewRegistry(testConfig, 10*time.Minute, fetcher, nil, resolver, clk, m, nil)
	t.Cleanup(r.Shutdown)
	return r, clk
}

func TestRegistry_CreateGetRemove(t *testing.T) {
	m := metrics.New()
	fetcher := newFakeFetcher(unirii)
	r, clk := newTestRegistry(t, fetcher, m)

	s, err := r.Create(nil)
	require.NoError(t, err)
	_, err = uuid.Parse(s.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))

	view := s.Stations()
	assert.Equal(t, StateFetching, view.State)
	assert.Equal(t, DefaultRegion, view.Region)
	clk.Advance(window)
	require.Len(t, fetcher.calls(), 1)
	assert.Equal(t, DefaultRegion.Bounds(), fetcher.calls()[0])

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	assert.True(t, r.Remove(s.ID))
	assert.False(t, r.Remove(s.ID))
	_, ok = r.Get(s.ID)
	assert.False(t, ok)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveSessions))

	_, err = r.Create(&transit.Region{Lat: 100})
	assert.ErrorIs(t, err, ErrInvalidRegion)
}

func TestRegistry_EvictIdle(t *testing.T) {
	r, clk := newTestRegistry(t, newFakeFetcher(), nil)

	idle, err := r.Create(&center)
	require.NoError(t, err)
	watched, err := r.Create(&center)
	require.NoError(t, err)
	_, unsubscribe := watched.Subscribe()
	active, err := r.Create(&center)
	require.NoError(t, err)

	clk.Advance(9 * time.Minute)
	_, err = active.UpdateRegion(south)
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	assert.Equal(t, 1, r.EvictIdle())
	_, ok := r.Get(idle.ID)
	assert.False(t, ok)
	_, ok = r.Get(watched.ID)
	assert.True(t, ok, "sessions with subscribers are kept")
	_, ok = r.Get(active.ID)
	assert.True(t, ok)

	unsubscribe()
	clk.Advance(11 * time.Minute)
	assert.Equal(t, 2, r.EvictIdle())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Shutdown(t *testing.T) {
	r, _ := newTestRegistry(t, newFakeFetcher(), nil)
	s, err := r.Create(nil)
	require.NoError(t, err)
	r.StartCleanup(time.Millisecond)
	r.StartCleanup(time.Millisecond)

	r.Shutdown()
	assert.Equal(t, 0, r.Len())
	_, err = s.UpdateRegion(center)
	assert.ErrorIs(t, err, ErrClosed)
}
