package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/cors"

	"github.com/pietrosul/MyBusApp/internal/app"
	"github.com/pietrosul/MyBusApp/internal/appconf"
	"github.com/pietrosul/MyBusApp/internal/arrivals"
	"github.com/pietrosul/MyBusApp/internal/catalog"
	"github.com/pietrosul/MyBusApp/internal/clock"
	"github.com/pietrosul/MyBusApp/internal/gtfs"
	"github.com/pietrosul/MyBusApp/internal/logging"
	"github.com/pietrosul/MyBusApp/internal/metrics"
	"github.com/pietrosul/MyBusApp/internal/overpass"
	"github.com/pietrosul/MyBusApp/internal/restapi"
	"github.com/pietrosul/MyBusApp/internal/stb"
	"github.com/pietrosul/MyBusApp/internal/viewport"
	"github.com/pietrosul/MyBusApp/internal/webui"
)

const (
	metricsCollectInterval = 15 * time.Second
	shutdownTimeout        = 30 * time.Second
	maxCleanupInterval     = time.Minute

	// fakeTimeEnv pins the clock of a non-production server, e.g. to replay
	// a rush hour against recorded data.
	fakeTimeEnv = "MYBUS_FAKE_TIME"
)

func appClock(env appconf.Environment) clock.Clock {
	if env == appconf.Production || os.Getenv(fakeTimeEnv) == "" {
		return clock.RealClock{}
	}
	location, err := time.LoadLocation("Europe/Bucharest")
	if err != nil {
		location = time.Local
	}
	return clock.NewEnvironmentClock(fakeTimeEnv, "", location)
}

// BuildApplication wires the data source, catalog, arrival resolver and
// session registry. Nothing is loaded yet; Run starts the initial load.
func BuildApplication(cfg appconf.Config) (*app.Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := logging.ParseLevel(cfg.LogLevel)
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewLogger(os.Stdout, cfg.LogFormat, level).
		With(slog.String("env", cfg.Env.String()))

	m := metrics.NewWithLogger(logger)
	clk := appClock(cfg.Env)

	catalogCfg := catalog.Config{
		MaxStations:     cfg.MaxStations,
		RefreshInterval: cfg.RefreshInterval,
		InitialRegion:   viewport.DefaultRegion,
	}

	var manager *catalog.Manager
	var stbClient *stb.Client
	switch cfg.DataSource {
	case appconf.SourceSTB:
		stbClient = stb.New(stb.Config{
			BaseURL:       cfg.STBBaseURL,
			RateLimit:     cfg.STBRateLimit,
			LinesCacheTTL: cfg.LinesCacheTTL,
		}, m, clk, logger)
		manager = catalog.NewRemote(stbClient, catalogCfg, m, logger)
	case appconf.SourceOverpass:
		loader := overpass.New(overpass.Config{
			URL:     cfg.OverpassURL,
			Area:    cfg.OverpassArea,
			Timeout: cfg.OverpassTimeout,
		}, m, logger)
		manager = catalog.NewBulk(loader, catalogCfg, m, logger)
	case appconf.SourceGTFS:
		loader := gtfs.NewLoader(gtfs.Config{GtfsURL: cfg.GTFSURL}, m, logger)
		manager = catalog.NewBulk(loader, catalogCfg, m, logger)
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}

	resolver := arrivals.NewResolver(manager, manager, nil, m, logger)

	coreApp := &app.Application{
		Config:   cfg,
		Logger:   logger,
		Catalog:  manager,
		Resolver: resolver,
		Clock:    clk,
		Metrics:  m,
		STB:      stbClient,
	}
	coreApp.Sessions = viewport.NewRegistry(coreApp.ViewportConfig(), cfg.SessionIdleTimeout,
		manager, manager, resolver, clk, m, logger)

	return coreApp, nil
}

// CreateServer builds the HTTP server. The returned RestAPI must be shut
// down by the caller.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	mux := http.NewServeMux()

	api := restapi.NewRestAPI(coreApp)
	api.SetRoutes(mux)

	webUI := &webui.WebUI{Application: coreApp}
	webUI.SetWebUIRoutes(mux)

	// Metrics sits directly on the mux so requests carry their matched pattern.
	handler := restapi.MetricsHandler(coreApp.Metrics)(mux)
	handler = restapi.NewRequestLoggingMiddleware(coreApp.Logger)(handler)
	handler = restapi.RequestIDMiddleware(handler)
	handler = cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", app.APIKeyHeader, restapi.RequestIDHeader},
		ExposedHeaders: []string{"Location", "Retry-After", restapi.RequestIDHeader},
		MaxAge:         300,
	})(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv, api
}

func cleanupInterval(idleTimeout time.Duration) time.Duration {
	return min(max(idleTimeout/2, time.Second), maxCleanupInterval)
}

// startBackground starts the initial catalog load and the periodic tasks.
// The load runs asynchronously; until it finishes the data endpoints answer
// 503. Refresh only starts after a successful load.
func startBackground(ctx context.Context, coreApp *app.Application) {
	logger := coreApp.Logger

	go func() {
		if err := coreApp.Catalog.Load(ctx); err != nil {
			return
		}
		coreApp.Catalog.StartRefresh()
	}()

	coreApp.Sessions.StartCleanup(cleanupInterval(coreApp.Config.SessionIdleTimeout))
	coreApp.Metrics.StartCollector(func() metrics.Sample {
		lines, stations := coreApp.Catalog.Sizes()
		return metrics.Sample{Lines: lines, Stations: stations, Sessions: coreApp.Sessions.Len()}
	}, metricsCollectInterval)

	logging.LogOperation(logger, "background_tasks_started",
		slog.String("data_source", coreApp.Config.DataSource))
}

// Run serves until ctx is cancelled, then shuts everything down.
func Run(ctx context.Context, srv *http.Server, coreApp *app.Application, api *restapi.RestAPI) error {
	logger := coreApp.Logger

	loadCtx, cancelLoad := context.WithCancel(context.Background())
	defer cancelLoad()
	startBackground(loadCtx, coreApp)

	serverErr := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "server_starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logging.LogOperation(logger, "shutdown_requested")
	case err := <-serverErr:
		if err != nil {
			logging.LogError(logger, "Server failed", err)
			runErr = err
		}
	}

	cancelLoad()
	// Closing the sessions ends open event streams, which Shutdown waits for.
	coreApp.Sessions.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "Server shutdown failed", err)
		runErr = errors.Join(runErr, err)
	}

	api.Shutdown()
	coreApp.Catalog.Shutdown()
	coreApp.Metrics.Shutdown()
	logging.LogOperation(logger, "server_stopped")
	return runErr
}
