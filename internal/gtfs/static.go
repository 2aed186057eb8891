// Package gtfs bulk loads a transit network from a GTFS static feed.
package gtfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/OneBusAway/go-gtfs"

	"github.com/pietrosul/MyBusApp/internal/logging"
	"github.com/pietrosul/MyBusApp/internal/metrics"
	"github.com/pietrosul/MyBusApp/internal/transit"
)

const maxStaticSize = 200 * 1024 * 1024

// Loader implements transit.BulkLoader over a GTFS zip.
type Loader struct {
	config  Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewLoader creates a Loader. m and logger may be nil.
func NewLoader(config Config, m *metrics.Metrics, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		config:  config,
		metrics: m,
		logger:  logger.With(slog.String("component", "gtfs_loader")),
	}
}

// LoadAll reads, parses and converts the feed.
func (l *Loader) LoadAll(ctx context.Context) (*transit.Snapshot, error) {
	started := time.Now()
	staticData, err := l.loadGTFSData(ctx)
	l.metrics.ObserveUpstream("gtfs", "load_all", started, err)
	if err != nil {
		return nil, err
	}

	snapshot := ToSnapshot(staticData)
	logging.LogOperation(l.logger, "gtfs_network_loaded",
		slog.String("source", l.config.GtfsURL),
		slog.Int("lines", len(snapshot.Lines)),
		slog.Int("stations", len(snapshot.Stations)),
		slog.Duration("duration", time.Since(started)))
	return snapshot, nil
}

func (l *Loader) loadGTFSData(ctx context.Context) (*gtfs.Static, error) {
	b, err := l.rawGtfsData(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS data: %w", err)
	}

	staticData, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing GTFS data: %w", err)
	}
	return staticData, nil
}

func (l *Loader) rawGtfsData(ctx context.Context) ([]byte, error) {
	source := l.config.GtfsURL
	if l.config.isLocalFile() {
		b, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("error reading local GTFS file: %w", err)
		}
		return b, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GTFS request: %w", err)
	}
	if l.config.StaticAuthHeaderKey != "" && l.config.StaticAuthHeaderValue != "" {
		req.Header.Set(l.config.StaticAuthHeaderKey, l.config.StaticAuthHeaderValue)
	}

	client := &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		}}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading GTFS data: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, l.logger, "http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download GTFS data: received HTTP status %s", resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxStaticSize+1))
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS data: %w", err)
	}
	if int64(len(b)) > maxStaticSize {
		return nil, fmt.Errorf("static GTFS response exceeds size limit of %d bytes", maxStaticSize)
	}
	return b, nil
}

// operatorColor normalizes route_color to "#RRGGBB", or "" when unset.
func operatorColor(route *gtfs.Route) string {
	c := strings.TrimPrefix(strings.TrimSpace(route.Color), "#")
	if c == "" {
		return ""
	}
	return "#" + strings.ToUpper(c)
}

func routeName(route *gtfs.Route) string {
	if route.ShortName != "" {
		return route.ShortName
	}
	if route.LongName != "" {
		return route.LongName
	}
	return route.Id
}

// ToSnapshot converts parsed GTFS data. Only stops served by at least one
// trip become stations, which leaves out parent stations and entrances.
// A line's shape is taken from its first trip that has one.
func ToSnapshot(data *gtfs.Static) *transit.Snapshot {
	lines := make(map[string]*transit.Line, len(data.Routes))
	order := make([]string, 0, len(data.Routes))
	for i := range data.Routes {
		route := &data.Routes[i]
		if _, dup := lines[route.Id]; dup {
			continue
		}
		name := routeName(route)
		vt := transit.Classify(transit.RouteKindFromGTFS(int(route.Type)), name)
		lines[route.Id] = &transit.Line{
			ID:            route.Id,
			Name:          name,
			VehicleType:   vt,
			Color:         vt.Color(),
			OperatorColor: operatorColor(route),
		}
		order = append(order, route.Id)
	}

	stopLines := make(map[string]map[string]struct{})
	for _, trip := range data.Trips {
		if trip.Route == nil {
			continue
		}
		line, ok := lines[trip.Route.Id]
		if !ok {
			continue
		}
		if len(line.Shape) == 0 && trip.Shape != nil {
			for _, p := range trip.Shape.Points {
				line.Shape = append(line.Shape, transit.LatLng{Lat: p.Latitude, Lon: p.Longitude})
			}
		}
		for _, st := range trip.StopTimes {
			if st.Stop == nil {
				continue
			}
			if stopLines[st.Stop.Id] == nil {
				stopLines[st.Stop.Id] = make(map[string]struct{})
			}
			stopLines[st.Stop.Id][line.ID] = struct{}{}
		}
	}

	snapshot := &transit.Snapshot{
		Lines:    make([]transit.Line, 0, len(order)),
		Stations: make([]transit.Station, 0, len(stopLines)),
	}
	for _, id := range order {
		snapshot.Lines = append(snapshot.Lines, *lines[id])
	}

	for _, stop := range data.Stops {
		served, ok := stopLines[stop.Id]
		if !ok || stop.Latitude == nil || stop.Longitude == nil {
			continue
		}
		station := transit.Station{
			ID:    stop.Id,
			Name:  strings.TrimSpace(stop.Name),
			Lat:   *stop.Latitude,
			Lon:   *stop.Longitude,
			Lines: make([]transit.LineRef, 0, len(served)),
		}
		for lineID := range served {
			station.Lines = append(station.Lines, lines[lineID].Ref())
		}
		sort.Slice(station.Lines, func(i, j int) bool {
			return station.Lines[i].Name < station.Lines[j].Name
		})
		station.VehicleType = transit.DominantVehicleType(station.Lines)
		station = station.Normalize()
		if station.HasLocation() {
			snapshot.Stations = append(snapshot.Stations, station)
		}
	}

	return snapshot
}
