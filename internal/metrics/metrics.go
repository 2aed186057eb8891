// Package metrics provides Prometheus metrics for the transit map service.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for UpstreamRequestsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upstream data source metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	// Domain metrics
	StationFetchesTotal     *prometheus.CounterVec
	ArrivalFallbacksTotal   prometheus.Counter
	ActiveSessions          prometheus.Gauge
	CatalogLines            prometheus.Gauge
	CatalogStations         prometheus.Gauge
	CatalogLastLoadUnixTime prometheus.Gauge

	// logger for error reporting
	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the collector goroutine
	cancel context.CancelFunc

	// wg tracks the collector goroutine for graceful shutdown
	wg sync.WaitGroup
}

// Sample is one reading of the sizes tracked by the collector.
type Sample struct {
	Lines    int
	Stations int
	Sessions int
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mybus_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mybus_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	upstreamRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mybus_upstream_requests_total",
			Help: "Requests made to upstream transit data sources",
		},
		[]string{"source", "operation", "outcome"},
	)

	upstreamRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mybus_upstream_request_duration_seconds",
			Help:    "Upstream transit data source latency distribution",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source", "operation"},
	)

	stationFetchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mybus_station_fetches_total",
			Help: "Viewport station fetches by result",
		},
		[]string{"result"},
	)

	arrivalFallbacksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mybus_arrival_fallbacks_total",
		Help: "Arrival lookups answered with synthetic estimates",
	})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mybus_active_sessions",
		Help: "Number of open viewport sessions",
	})

	catalogLines := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mybus_catalog_lines",
		Help: "Number of lines known to the catalog",
	})

	catalogStations := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mybus_catalog_stations",
		Help: "Number of stations known to the catalog",
	})

	catalogLastLoad := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mybus_catalog_last_load_timestamp_seconds",
		Help: "Unix time of the last successful catalog load",
	})

	// Register all metrics with the custom registry
	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		upstreamRequestsTotal,
		upstreamRequestDuration,
		stationFetchesTotal,
		arrivalFallbacksTotal,
		activeSessions,
		catalogLines,
		catalogStations,
		catalogLastLoad,
	)

	return &Metrics{
		Registry:                registry,
		HTTPRequestsTotal:       httpRequestsTotal,
		HTTPRequestDuration:     httpRequestDuration,
		UpstreamRequestsTotal:   upstreamRequestsTotal,
		UpstreamRequestDuration: upstreamRequestDuration,
		StationFetchesTotal:     stationFetchesTotal,
		ArrivalFallbacksTotal:   arrivalFallbacksTotal,
		ActiveSessions:          activeSessions,
		CatalogLines:            catalogLines,
		CatalogStations:         catalogStations,
		CatalogLastLoadUnixTime: catalogLastLoad,
		logger:                  logger,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveUpstream records one upstream call. A nil receiver is a no-op so
// data sources can be built without metrics in tests.
func (m *Metrics) ObserveUpstream(source, operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.UpstreamRequestsTotal.WithLabelValues(source, operation, outcome).Inc()
	m.UpstreamRequestDuration.WithLabelValues(source, operation).Observe(time.Since(started).Seconds())
}

// Station fetch results.
const (
	FetchOK    = "ok"
	FetchEmpty = "empty"
	FetchError = "error"
)

// ObserveStationFetch counts one bounded station query.
func (m *Metrics) ObserveStationFetch(result string) {
	if m == nil {
		return
	}
	m.StationFetchesTotal.WithLabelValues(result).Inc()
}

// ObserveArrivalFallback counts one synthetic arrival answer.
func (m *Metrics) ObserveArrivalFallback() {
	if m == nil {
		return
	}
	m.ArrivalFallbacksTotal.Inc()
}

// ObserveCatalogLoad records the sizes of a freshly loaded catalog.
func (m *Metrics) ObserveCatalogLoad(lines, stations int, at time.Time) {
	if m == nil {
		return
	}
	m.CatalogLines.Set(float64(lines))
	m.CatalogStations.Set(float64(stations))
	m.CatalogLastLoadUnixTime.Set(float64(at.Unix()))
}

// StartCollector starts a goroutine that periodically calls sample and
// updates the size gauges.
// This method is idempotent - calling it multiple times has no effect after the first call.
// Call Shutdown() to stop the collector.
func (m *Metrics) StartCollector(sample func() Sample, interval time.Duration) {
	if sample == nil || interval <= 0 {
		return
	}

	// Prevent spawning multiple collectors
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in metrics collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.apply(sample())
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Metrics) apply(s Sample) {
	m.CatalogLines.Set(float64(s.Lines))
	m.CatalogStations.Set(float64(s.Stations))
	m.ActiveSessions.Set(float64(s.Sessions))
}

// Shutdown stops the collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
