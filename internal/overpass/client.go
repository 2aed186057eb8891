package overpass

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pietrosul/MyBusApp/internal/logging"
	"github.com/pietrosul/MyBusApp/internal/metrics"
	"github.com/pietrosul/MyBusApp/internal/transit"
)

const maxResponseSize = 128 * 1024 * 1024

type Config struct {
	URL     string
	Area    string
	Timeout time.Duration // server-side query timeout
}

// Loader implements transit.BulkLoader.
type Loader struct {
	config     Config
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Loader. m and logger may be nil.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		config: cfg,
		httpClient: &http.Client{
			// The interpreter enforces cfg.Timeout itself; allow time for the transfer.
			Timeout: cfg.Timeout + 30*time.Second,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: cfg.Timeout + 10*time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		metrics: m,
		logger:  logger.With(slog.String("component", "overpass_loader")),
	}
}

// LoadAll runs the area query once and converts the result.
func (l *Loader) LoadAll(ctx context.Context) (*transit.Snapshot, error) {
	started := time.Now()
	body, err := l.query(ctx, BuildQuery(l.config.Area, l.config.Timeout))
	l.metrics.ObserveUpstream("overpass", "load_all", started, err)
	if err != nil {
		return nil, err
	}

	resp, err := Decode(body)
	if err != nil {
		return nil, err
	}
	snapshot := ToSnapshot(resp)

	logging.LogOperation(l.logger, "overpass_network_loaded",
		slog.String("area", l.config.Area),
		slog.Int("lines", len(snapshot.Lines)),
		slog.Int("stations", len(snapshot.Stations)),
		slog.Duration("duration", time.Since(started)))

	return snapshot, nil
}

func (l *Loader) query(ctx context.Context, q string) ([]byte, error) {
	form := url.Values{}
	form.Set("data", q)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.config.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating overpass request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error querying overpass: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, l.logger, "http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("overpass query failed: received HTTP status %s", resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("error reading overpass response: %w", err)
	}
	if int64(len(b)) > maxResponseSize {
		return nil, fmt.Errorf("overpass response exceeds size limit of %d bytes", maxResponseSize)
	}
	return b, nil
}
