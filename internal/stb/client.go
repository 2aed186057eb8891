// Package stb is the transit data source backed by the operator's REST API.
// It answers bounded station queries remotely, so no bulk station load is
// needed.
package stb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/pietrosul/MyBusApp/internal/clock"
	"github.com/pietrosul/MyBusApp/internal/logging"
	"github.com/pietrosul/MyBusApp/internal/metrics"
	"github.com/pietrosul/MyBusApp/internal/transit"
)

const (
	sourceName     = "stb"
	userAgent      = "InfoTB/1.0"
	maxBodySize    = 10 * 1024 * 1024
	defaultTimeout = 10 * time.Second
)

// Config configures the REST client.
type Config struct {
	BaseURL       string
	Lang          string
	Timeout       time.Duration
	RateLimit     float64 // requests per second, 0 means unlimited
	LinesCacheTTL time.Duration
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Path   string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stb: %s returned %s", e.Path, e.Status)
}

// Client implements transit.DataSource, transit.VehicleSource and
// transit.LineDetailer against the operator API.
type Client struct {
	baseURL    string
	lang       string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	group      singleflight.Group
	metrics    *metrics.Metrics
	clock      clock.Clock
	logger     *slog.Logger

	linesTTL     time.Duration
	linesMu      sync.RWMutex
	cachedLines  []transit.Line
	linesFetched time.Time
}

func newHTTPClient(timeout time.Duration) *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 20
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// New creates a client. m and logger may be nil.
func New(cfg Config, m *metrics.Metrics, c clock.Clock, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Lang == "" {
		cfg.Lang = "ro"
	}
	if c == nil {
		c = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(cfg.RateLimit))
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		lang:       cfg.Lang,
		httpClient: newHTTPClient(cfg.Timeout),
		timeout:    cfg.Timeout,
		limiter:    rate.NewLimiter(limit, burst),
		metrics:    m,
		clock:      c,
		logger:     logger.With(slog.String("component", "stb_client")),
		linesTTL:   cfg.LinesCacheTTL,
	}
}

func (c *Client) endpoint(path string) string {
	q := url.Values{}
	q.Set("lang", c.lang)
	return c.baseURL + path + "?" + q.Encode()
}

// fetch performs a GET and returns the body. Concurrent identical requests
// share one upstream call. The shared call is detached from the caller that
// started it and bounded by the client timeout instead, so a cancelled
// caller only stops waiting for itself.
func (c *Client) fetch(ctx context.Context, operation, path string) ([]byte, error) {
	ch := c.group.DoChan(path, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		started := time.Now()
		body, err := c.do(callCtx, path)
		c.metrics.ObserveUpstream(sourceName, operation, started, err)
		return body, err
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("stb: request %s abandoned: %w", path, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("stb: rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return nil, fmt.Errorf("stb: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stb: request %s failed: %w", path, err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "http_response_body")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Path: path, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("stb: failed to read response body: %w", err)
	}
	if int64(len(body)) > maxBodySize {
		return nil, fmt.Errorf("stb: response exceeds size limit of %d bytes", maxBodySize)
	}
	return body, nil
}

// Lines returns every line, served from a TTL cache when configured.
func (c *Client) Lines(ctx context.Context) ([]transit.Line, error) {
	if lines, ok := c.cachedLinesIfFresh(); ok {
		return lines, nil
	}

	body, err := c.fetch(ctx, "lines", "/lines")
	if err != nil {
		return nil, err
	}
	raw, err := decodeList[rawLine](body, "lines")
	if err != nil {
		return nil, fmt.Errorf("stb: lines: %w", err)
	}

	lines := make([]transit.Line, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" {
			continue
		}
		lines = append(lines, r.toLine())
	}

	if c.linesTTL > 0 {
		c.linesMu.Lock()
		c.cachedLines = lines
		c.linesFetched = c.clock.Now()
		c.linesMu.Unlock()
	}
	return lines, nil
}

func (c *Client) cachedLinesIfFresh() ([]transit.Line, bool) {
	if c.linesTTL <= 0 {
		return nil, false
	}
	c.linesMu.RLock()
	defer c.linesMu.RUnlock()
	if c.cachedLines == nil || c.clock.Now().Sub(c.linesFetched) >= c.linesTTL {
		return nil, false
	}
	return c.cachedLines, true
}

// LineDetails returns a line with its stations in route order.
func (c *Client) LineDetails(ctx context.Context, lineID string) (*transit.LineDetails, error) {
	body, err := c.fetch(ctx, "line_details", "/lines/"+url.PathEscape(lineID))
	if err != nil {
		return nil, notFoundOn404(err)
	}
	var raw rawLineDetails
	if err := decodeObject(body, &raw); err != nil {
		return nil, fmt.Errorf("stb: line %s: %w", lineID, err)
	}
	if raw.ID == "" {
		raw.ID = flexString(lineID)
	}

	details := &transit.LineDetails{Line: raw.toLine(), Stations: make([]transit.Station, 0, len(raw.Stations))}
	for _, s := range raw.Stations {
		if station, ok := s.toStation(); ok {
			details.Stations = append(details.Stations, station)
		}
	}
	return details, nil
}

// LineVehicles returns the live vehicle positions of a line.
func (c *Client) LineVehicles(ctx context.Context, lineID string) ([]transit.Vehicle, error) {
	body, err := c.fetch(ctx, "vehicles", "/vehicles/line/"+url.PathEscape(lineID))
	if err != nil {
		return nil, notFoundOn404(err)
	}
	raw, err := decodeList[rawVehicle](body, "vehicles")
	if err != nil {
		return nil, fmt.Errorf("stb: vehicles for line %s: %w", lineID, err)
	}

	vehicles := make([]transit.Vehicle, 0, len(raw))
	for _, r := range raw {
		if v, ok := r.toVehicle(lineID); ok {
			vehicles = append(vehicles, v)
		}
	}
	return vehicles, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func boundsPath(box transit.BoundingBox) string {
	return fmt.Sprintf("/lines/home/stops/%s/%s/%s/%s",
		formatCoord(box.South), formatCoord(box.West), formatCoord(box.North), formatCoord(box.East))
}

// StationsInBounds delegates the bounded query to the API. Records without
// usable coordinates are dropped.
func (c *Client) StationsInBounds(ctx context.Context, box transit.BoundingBox) ([]transit.Station, error) {
	if !box.Valid() {
		return nil, fmt.Errorf("stb: invalid bounding box %+v", box)
	}

	body, err := c.fetch(ctx, "stations_in_bounds", boundsPath(box))
	if err != nil {
		return nil, err
	}
	raw, err := decodeList[rawStation](body, "stops", "stations")
	if err != nil {
		return nil, fmt.Errorf("stb: stations in bounds: %w", err)
	}

	stations := make([]transit.Station, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		station, ok := r.toStation()
		if !ok {
			dropped++
			continue
		}
		stations = append(stations, station)
	}
	if dropped > 0 {
		c.logger.Debug("dropped stations without coordinates", slog.Int("count", dropped))
	}
	return stations, nil
}

// Arrivals returns the live arrival estimates for a station.
func (c *Client) Arrivals(ctx context.Context, stationID string) ([]transit.ArrivalEstimate, error) {
	body, err := c.fetch(ctx, "arrivals", "/lines/stations/"+url.PathEscape(stationID)+"/arrivals")
	if err != nil {
		return nil, err
	}
	raw, err := decodeList[rawArrival](body, "arrivals", "lines")
	if err != nil {
		return nil, fmt.Errorf("stb: arrivals for station %s: %w", stationID, err)
	}

	estimates := make([]transit.ArrivalEstimate, 0, len(raw))
	for _, r := range raw {
		if r.LineID == "" && r.LineName == "" {
			continue
		}
		estimates = append(estimates, r.toEstimate())
	}
	return estimates, nil
}

func notFoundOn404(err error) error {
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", transit.ErrNotFound, se.Path)
	}
	return err
}
