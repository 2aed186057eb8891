package restapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pietrosul/MyBusApp/internal/catalog"
	"github.com/pietrosul/MyBusApp/internal/logging"
	"github.com/pietrosul/MyBusApp/internal/models"
	"github.com/pietrosul/MyBusApp/internal/transit"
	"github.com/pietrosul/MyBusApp/internal/utils"
	"github.com/pietrosul/MyBusApp/internal/viewport"
)

const maxSearchRadius = 5000.0

// stationsHandler answers one of three query shapes:
//
//	?lat&lon&latSpan&lonSpan  map region, clamped and gated like a session
//	?north&south&east&west    explicit bounding box
//	?lat&lon&radius           circle in meters, nearest first with distances
func (api *RestAPI) stationsHandler(w http.ResponseWriter, r *http.Request) {
	params := newFloatParams(r.URL.Query())

	switch {
	case params.has("lat", "lon", "latSpan", "lonSpan"):
		region := transit.Region{
			Lat:     params.require("lat", -90, 90),
			Lon:     params.require("lon", -180, 180),
			LatSpan: params.require("latSpan", 0, 180),
			LonSpan: params.require("lonSpan", 0, 360),
		}
		if !params.valid() {
			api.validationErrorResponse(w, r, params.errors)
			return
		}
		region = region.Clamp(api.Config.MinSpan, api.Config.MaxSpan)
		if !viewport.NewGate(api.Config.VisibilityThreshold).ShouldShowStations(region) {
			api.sendResponse(w, r, models.NewListResponse([]models.StationEntry{}, false, api.clock()))
			return
		}
		api.sendStationsInBox(w, r, region.Bounds())

	case params.has("north", "south", "east", "west"):
		box := transit.BoundingBox{
			North: params.require("north", -90, 90),
			South: params.require("south", -90, 90),
			East:  params.require("east", -180, 180),
			West:  params.require("west", -180, 180),
		}
		if params.valid() && !box.Valid() {
			params.errors["bounds"] = []string{"south must not exceed north and west must not exceed east"}
		}
		if !params.valid() {
			api.validationErrorResponse(w, r, params.errors)
			return
		}
		api.sendStationsInBox(w, r, box)

	case params.has("lat", "lon", "radius"):
		lat := params.require("lat", -90, 90)
		lon := params.require("lon", -180, 180)
		radius := params.require("radius", 1, maxSearchRadius)
		if !params.valid() {
			api.validationErrorResponse(w, r, params.errors)
			return
		}
		api.sendStationsNear(w, r, lat, lon, radius)

	default:
		api.validationErrorResponse(w, r, map[string][]string{
			"query": {"expected lat,lon,latSpan,lonSpan or north,south,east,west or lat,lon,radius"},
		})
	}
}

// stationsInBox fetches the stations of box. A failed fetch degrades to an
// empty set, the same way a session's station layer does; only a catalog
// that is not loaded yet is reported to the client.
func (api *RestAPI) stationsInBox(w http.ResponseWriter, r *http.Request, box transit.BoundingBox) ([]transit.Station, bool) {
	found, err := api.Catalog.StationsInBounds(r.Context(), box)
	if err != nil {
		if errors.Is(err, catalog.ErrNotReady) {
			api.sendError(w, r, http.StatusServiceUnavailable, err.Error())
			return nil, false
		}
		if r.Context().Err() == nil {
			logging.LogError(api.logger(), "Station fetch failed, answering an empty set", err,
				slog.String("request_id", GetRequestID(r.Context())),
				slog.Float64("north", box.North),
				slog.Float64("south", box.South),
				slog.Float64("east", box.East),
				slog.Float64("west", box.West))
		}
		return []transit.Station{}, true
	}
	return found, true
}

func (api *RestAPI) sendStationsInBox(w http.ResponseWriter, r *http.Request, box transit.BoundingBox) {
	found, ok := api.stationsInBox(w, r, box)
	if !ok {
		return
	}
	api.sendResponse(w, r, models.NewListResponse(models.NewStationEntries(found), api.capped(len(found)), api.clock()))
}

func (api *RestAPI) sendStationsNear(w http.ResponseWriter, r *http.Request, lat, lon, radius float64) {
	bounds := utils.CalculateBounds(lat, lon, radius)
	box := transit.BoundingBox{North: bounds.MaxLat, South: bounds.MinLat, East: bounds.MaxLon, West: bounds.MinLon}

	found, ok := api.stationsInBox(w, r, box)
	if !ok {
		return
	}

	entries := make([]models.StationEntry, 0, len(found))
	for _, s := range found {
		entry := models.NewStationEntryWithDistance(s, lat, lon)
		if *entry.Distance <= radius {
			entries = append(entries, entry)
		}
	}
	api.sendResponse(w, r, models.NewListResponse(entries, api.capped(len(found)), api.clock()))
}

// capped reports whether a result of n stations may have been cut by the
// station cap.
func (api *RestAPI) capped(n int) bool {
	return api.Config.MaxStations > 0 && n >= api.Config.MaxStations
}

func (api *RestAPI) stationHandler(w http.ResponseWriter, r *http.Request) {
	station, ok := api.Catalog.Station(r.PathValue("id"))
	if !ok {
		api.sendNotFound(w, r)
		return
	}
	api.sendResponse(w, r, models.NewEntryResponse(models.NewStationEntry(station), api.clock()))
}

// stationArrivalsHandler always answers with estimates: live ones when the
// source has them, synthetic ones otherwise.
func (api *RestAPI) stationArrivalsHandler(w http.ResponseWriter, r *http.Request) {
	station, ok := api.Catalog.Station(r.PathValue("id"))
	if !ok {
		api.sendNotFound(w, r)
		return
	}
	estimates := api.Resolver.ArrivalsFor(r.Context(), station)
	api.sendResponse(w, r, models.NewEntryResponse(models.NewArrivalsEntry(station, estimates), api.clock()))
}
