package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pietrosul/MyBusApp/internal/app"
	"github.com/pietrosul/MyBusApp/internal/appconf"
	"github.com/pietrosul/MyBusApp/internal/arrivals"
	"github.com/pietrosul/MyBusApp/internal/catalog"
	"github.com/pietrosul/MyBusApp/internal/clock"
	"github.com/pietrosul/MyBusApp/internal/models"
	"github.com/pietrosul/MyBusApp/internal/transit"
	"github.com/pietrosul/MyBusApp/internal/viewport"
)

var (
	tram1 = transit.Line{ID: "L1", Name: "1", VehicleType: transit.Tram, Color: transit.Tram.Color(),
		Shape: []transit.LatLng{{Lat: 44.4275, Lon: 26.1030}, {Lat: 44.4355, Lon: 26.1025}}}
	bus105  = transit.Line{ID: "L105", Name: "105", VehicleType: transit.Bus, Color: transit.Bus.Color()}
	night10 = transit.Line{ID: "LN10", Name: "N10", VehicleType: transit.NightBus, Color: transit.NightBus.Color()}

	testNow = time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
)

func testStation(id, name string, lat, lon float64, lines ...transit.Line) transit.Station {
	s := transit.Station{ID: id, Name: name, Lat: lat, Lon: lon, Lines: []transit.LineRef{}}
	for _, l := range lines {
		s.Lines = append(s.Lines, l.Ref())
	}
	s.VehicleType = transit.DominantVehicleType(s.Lines)
	return s
}

// fakeSource is an in-memory remote transit source. Stations without an
// arrivals entry fail their arrivals query, and every bounded query fails
// with stationsErr when it is set.
type fakeSource struct {
	mu          sync.Mutex
	lines       []transit.Line
	stations    []transit.Station
	arrivals    map[string][]transit.ArrivalEstimate
	vehicles    map[string][]transit.Vehicle
	queries     int
	stationsErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		lines: []transit.Line{tram1, bus105, night10},
		stations: []transit.Station{
			testStation("unirii", "Piața Unirii", 44.4275, 26.1030, tram1, bus105),
			testStation("universitate", "Universitate", 44.4355, 26.1025, bus105),
			testStation("baneasa", "Băneasa", 44.5000, 26.2000, night10),
		},
		arrivals: map[string][]transit.ArrivalEstimate{
			"unirii": {{LineID: "L105", Destination: "Gara de Nord", Minutes: []int{12, 3}}},
		},
		vehicles: map[string][]transit.Vehicle{
			"L105": {{ID: "B-105-1", LineID: "L105", Lat: 44.43, Lon: 26.10, Bearing: 90}},
		},
	}
}

func (f *fakeSource) Lines(context.Context) ([]transit.Line, error) {
	return f.lines, nil
}

func (f *fakeSource) StationsInBounds(_ context.Context, box transit.BoundingBox) ([]transit.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.stationsErr != nil {
		return nil, f.stationsErr
	}
	var out []transit.Station
	for _, s := range f.stations {
		if box.Contains(s.Lat, s.Lon) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) Arrivals(_ context.Context, stationID string) ([]transit.ArrivalEstimate, error) {
	estimates, ok := f.arrivals[stationID]
	if !ok {
		return nil, errors.New("upstream timeout")
	}
	return estimates, nil
}

func (f *fakeSource) LineVehicles(_ context.Context, lineID string) ([]transit.Vehicle, error) {
	return f.vehicles[lineID], nil
}

// positionlessSource hides the vehicle capability of its source.
type positionlessSource struct {
	transit.DataSource
}

func testConfig() appconf.Config {
	cfg := appconf.Defaults()
	cfg.Env = appconf.Test
	cfg.ApiKeys = []string{"TEST"}
	cfg.RateLimit = 100
	return cfg
}

// newTestApplication wires an application around source. The catalog is
// loaded unless load is false.
func newTestApplication(t *testing.T, cfg appconf.Config, source transit.DataSource, load bool) *app.Application {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewMockClock(testNow)

	manager := catalog.NewRemote(source, catalog.Config{
		MaxStations:   cfg.MaxStations,
		InitialRegion: viewport.DefaultRegion,
	}, nil, logger)
	if load {
		require.NoError(t, manager.Load(context.Background()))
	}

	resolver := arrivals.NewResolver(manager, manager, rand.New(rand.NewPCG(1, 2)), nil, logger)
	application := &app.Application{
		Config:   cfg,
		Logger:   logger,
		Catalog:  manager,
		Resolver: resolver,
		Clock:    clk,
	}
	application.Sessions = viewport.NewRegistry(application.ViewportConfig(), cfg.SessionIdleTimeout,
		manager, manager, resolver, clk, nil, logger)

	t.Cleanup(func() {
		application.Sessions.Shutdown()
		manager.Shutdown()
	})
	return application
}

func createTestApi(t *testing.T) *RestAPI {
	t.Helper()
	return createTestApiWithSource(t, testConfig(), newFakeSource())
}

func createTestApiWithSource(t *testing.T, cfg appconf.Config, source transit.DataSource) *RestAPI {
	t.Helper()
	api := NewRestAPI(newTestApplication(t, cfg, source, true))
	t.Cleanup(api.Shutdown)
	return api
}

func newTestServer(t *testing.T, api *RestAPI) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	api.SetRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// serveAndRetrieveEndpoint GETs path from a fresh test API.
func serveAndRetrieveEndpoint(t *testing.T, path string) (*RestAPI, *http.Response, models.ResponseModel) {
	t.Helper()
	api := createTestApi(t)
	resp, model := serveApiAndRetrieveEndpoint(t, api, http.MethodGet, path, "")
	return api, resp, model
}

func serveApiAndRetrieveEndpoint(t *testing.T, api *RestAPI, method, path, body string) (*http.Response, models.ResponseModel) {
	t.Helper()
	server := newTestServer(t, api)
	return doRequest(t, server, method, path, body)
}

func doRequest(t *testing.T, server *httptest.Server, method, path, body string) (*http.Response, models.ResponseModel) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var model models.ResponseModel
	require.NoError(t, json.Unmarshal(raw, &model), "body: %s", raw)
	return resp, model
}

// entry returns data.entry of a decoded envelope.
func entry(t *testing.T, model models.ResponseModel) map[string]any {
	t.Helper()
	data, ok := model.Data.(map[string]any)
	require.True(t, ok, "data is %T", model.Data)
	e, ok := data["entry"].(map[string]any)
	require.True(t, ok, "entry is %T", data["entry"])
	return e
}

// list returns data.list of a decoded envelope.
func list(t *testing.T, model models.ResponseModel) []any {
	t.Helper()
	data, ok := model.Data.(map[string]any)
	require.True(t, ok, "data is %T", model.Data)
	l, ok := data["list"].([]any)
	require.True(t, ok, "list is %T", data["list"])
	return l
}

func ids(t *testing.T, items []any, key string) []string {
	t.Helper()
	out := make([]string, 0, len(items))
	for i, item := range items {
		object, ok := item.(map[string]any)
		require.True(t, ok, "item %d is %T", i, item)
		id, ok := object[key].(string)
		require.True(t, ok, "item %d key %q is %T", i, key, object[key])
		out = append(out, id)
	}
	return out
}
