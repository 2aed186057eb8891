package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pietrosul/MyBusApp/internal/logging"
	"github.com/pietrosul/MyBusApp/internal/models"
	"github.com/pietrosul/MyBusApp/internal/transit"
	"github.com/pietrosul/MyBusApp/internal/viewport"
)

const (
	maxBodyBytes = 1 << 16
	sseHeartbeat = 25 * time.Second
)

type selectionRequest struct {
	StationID string `json:"stationId"`
}

// readJSON decodes a single JSON object from the body. An empty body leaves
// dst untouched and reports false.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) (bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	if dec.More() {
		return false, errors.New("body must contain a single JSON object")
	}
	return true, nil
}

// createSessionHandler opens a viewport session. The body may carry the
// initial region; without one the session starts over central Bucharest.
func (api *RestAPI) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var region transit.Region
	present, err := readJSON(w, r, &region)
	if err != nil {
		api.validationErrorResponse(w, r, map[string][]string{"body": {err.Error()}})
		return
	}

	var initial *transit.Region
	if present {
		initial = &region
	}
	session, err := api.Sessions.Create(initial)
	if err != nil {
		if errors.Is(err, viewport.ErrInvalidRegion) {
			api.validationErrorResponse(w, r, map[string][]string{"region": {err.Error()}})
			return
		}
		api.serverErrorResponse(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/sessions/"+session.ID)
	response := models.NewEntryResponse(models.NewSessionEntry(session), api.clock())
	response.Code = http.StatusCreated
	api.sendResponseWithStatus(w, r, http.StatusCreated, response)
}

func (api *RestAPI) lookupSession(w http.ResponseWriter, r *http.Request) (*viewport.Session, bool) {
	session, ok := api.Sessions.Get(r.PathValue("id"))
	if !ok {
		api.sendNotFound(w, r)
		return nil, false
	}
	return session, true
}

func (api *RestAPI) sessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := api.lookupSession(w, r)
	if !ok {
		return
	}
	api.sendResponse(w, r, models.NewEntryResponse(models.NewSessionEntry(session), api.clock()))
}

// sessionRegionHandler reports a map movement. The answer is the station
// layer right after the change: hidden, or fetching until the debounced
// query completes.
func (api *RestAPI) sessionRegionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := api.lookupSession(w, r)
	if !ok {
		return
	}

	var region transit.Region
	present, err := readJSON(w, r, &region)
	if err == nil && !present {
		err = errors.New("region is required")
	}
	if err != nil {
		api.validationErrorResponse(w, r, map[string][]string{"body": {err.Error()}})
		return
	}

	view, err := session.UpdateRegion(region)
	switch {
	case errors.Is(err, viewport.ErrInvalidRegion):
		api.validationErrorResponse(w, r, map[string][]string{"region": {err.Error()}})
		return
	case errors.Is(err, viewport.ErrClosed):
		api.sendNotFound(w, r)
		return
	case err != nil:
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewEntryResponse(models.NewStationsViewEntry(view), api.clock()))
}

// sessionSelectionHandler opens the popup of a station, or closes it when
// stationId is empty.
func (api *RestAPI) sessionSelectionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := api.lookupSession(w, r)
	if !ok {
		return
	}

	var req selectionRequest
	if _, err := readJSON(w, r, &req); err != nil {
		api.validationErrorResponse(w, r, map[string][]string{"body": {err.Error()}})
		return
	}

	if req.StationID == "" {
		session.Deselect()
		api.sendResponse(w, r, models.NewEntryResponse(session.Arrivals(), api.clock()))
		return
	}

	view, err := session.Select(req.StationID)
	switch {
	case errors.Is(err, transit.ErrNotFound), errors.Is(err, viewport.ErrClosed):
		api.sendNotFound(w, r)
		return
	case err != nil:
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewEntryResponse(view, api.clock()))
}

func (api *RestAPI) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if !api.Sessions.Remove(r.PathValue("id")) {
		api.sendNotFound(w, r)
		return
	}
	api.sendResponse(w, r, models.NewOKResponse(nil, api.clock()))
}

// sessionEventsHandler streams session changes as server-sent events. The
// current station layer and popup are sent first.
func (api *RestAPI) sessionEventsHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := api.lookupSession(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		api.serverErrorResponse(w, r, err)
		return
	}

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logging.LogError(api.logger(), "Event stream not flushable", err, slog.String("session_id", session.ID))
		return
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				_, _ = io.WriteString(w, "event: closed\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, ev viewport.Event) error {
	var payload any
	switch {
	case ev.Stations != nil:
		payload = models.NewStationsViewEntry(*ev.Stations)
	case ev.Arrivals != nil:
		payload = ev.Arrivals
	default:
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
