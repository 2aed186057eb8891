package restapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pietrosul/MyBusApp/internal/logging"
	"github.com/pietrosul/MyBusApp/internal/models"
	"github.com/pietrosul/MyBusApp/internal/transit"
)

const (
	defaultLineSearchLimit = 20
	maxLineSearchLimit     = 250
)

// linesHandler lists every line, or the lines matching q.
func (api *RestAPI) linesHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := query.Get("q")

	var lines []transit.Line
	limitExceeded := false
	if q != "" {
		limit, ok := parseLimit(query, "max", defaultLineSearchLimit, maxLineSearchLimit)
		if !ok {
			api.validationErrorResponse(w, r, map[string][]string{"max": {"must be a positive integer"}})
			return
		}
		// One extra result tells whether the limit cut the list.
		lines = api.Catalog.SearchLines(q, limit+1)
		if len(lines) > limit {
			lines = lines[:limit]
			limitExceeded = true
		}
	} else {
		lines = api.Catalog.Lines()
	}

	entries := make([]models.LineEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, models.NewLineEntry(line, false))
	}
	api.sendResponse(w, r, models.NewListResponse(entries, limitExceeded, api.clock()))
}

// lineHandler returns one line with its shape and stations.
func (api *RestAPI) lineHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	details, err := api.Catalog.LineDetails(r.Context(), id)
	if err != nil {
		if errors.Is(err, transit.ErrNotFound) {
			api.sendNotFound(w, r)
			return
		}
		api.upstreamError(w, r, err, slog.String("line_id", id))
		return
	}
	api.sendResponse(w, r, models.NewEntryResponse(models.NewLineDetailsEntry(details), api.clock()))
}

func (api *RestAPI) lineVehiclesHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	vehicles, err := api.Catalog.LineVehicles(r.Context(), id)
	switch {
	case errors.Is(err, transit.ErrNotFound):
		api.sendNotFound(w, r)
		return
	case errors.Is(err, transit.ErrVehiclesUnavailable):
		api.sendError(w, r, http.StatusNotImplemented, err.Error())
		return
	case err != nil:
		api.upstreamError(w, r, err, slog.String("line_id", id))
		return
	}

	if vehicles == nil {
		vehicles = []transit.Vehicle{}
	}
	api.sendResponse(w, r, models.NewListResponse(vehicles, false, api.clock()))
}

// upstreamError answers 502 for failures of the transit source. A request
// cancelled by the client is not logged.
func (api *RestAPI) upstreamError(w http.ResponseWriter, r *http.Request, err error, attrs ...slog.Attr) {
	if r.Context().Err() == nil {
		attrs = append(attrs, slog.String("path", r.URL.Path), slog.String("request_id", GetRequestID(r.Context())))
		logging.LogError(api.logger(), "Transit source request failed", err, attrs...)
	}
	api.sendError(w, r, http.StatusBadGateway, "transit data source unavailable")
}
