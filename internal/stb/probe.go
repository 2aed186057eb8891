package stb

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/pietrosul/MyBusApp/internal/transit"
)

const probePreviewLength = 100

// ProbeResult is the outcome of calling one endpoint.
type ProbeResult struct {
	Endpoint string        `json:"endpoint"`
	Status   int           `json:"status"`
	Error    string        `json:"error,omitempty"`
	Preview  string        `json:"preview,omitempty"`
	Duration time.Duration `json:"duration"`
}

// probeBox covers central Bucharest.
var probeBox = transit.Region{Lat: 44.4268, Lon: 26.1025, LatSpan: 0.01, LonSpan: 0.01}.Bounds()

// Probe calls every endpoint once, bypassing caches, and reports what each
// one answered. Line and station IDs for the per-item endpoints are taken
// from the earlier responses.
func (c *Client) Probe(ctx context.Context) []ProbeResult {
	results := make([]ProbeResult, 0, 5)

	linesResult, linesBody := c.probe(ctx, "/lines")
	results = append(results, linesResult)

	lineID := ""
	if linesBody != nil {
		if raw, err := decodeList[rawLine](linesBody, "lines"); err == nil && len(raw) > 0 {
			lineID = string(raw[0].ID)
		}
	}
	if lineID != "" {
		r, _ := c.probe(ctx, "/lines/"+url.PathEscape(lineID))
		results = append(results, r)
		r, _ = c.probe(ctx, "/vehicles/line/"+url.PathEscape(lineID))
		results = append(results, r)
	}

	stopsResult, stopsBody := c.probe(ctx, boundsPath(probeBox))
	results = append(results, stopsResult)

	stationID := ""
	if stopsBody != nil {
		if raw, err := decodeList[rawStation](stopsBody, "stops", "stations"); err == nil && len(raw) > 0 {
			stationID = string(raw[0].ID)
		}
	}
	if stationID != "" {
		r, _ := c.probe(ctx, "/lines/stations/"+url.PathEscape(stationID)+"/arrivals")
		results = append(results, r)
	}

	return results
}

func (c *Client) probe(ctx context.Context, path string) (ProbeResult, []byte) {
	started := time.Now()
	body, err := c.do(ctx, path)
	result := ProbeResult{Endpoint: path, Duration: time.Since(started)}

	var se *StatusError
	switch {
	case err == nil:
		result.Status = 200
		preview := string(body)
		if len(preview) > probePreviewLength {
			preview = preview[:probePreviewLength] + "..."
		}
		result.Preview = preview
	case errors.As(err, &se):
		result.Status = se.Code
		result.Error = se.Error()
	default:
		result.Error = err.Error()
	}
	return result, body
}
