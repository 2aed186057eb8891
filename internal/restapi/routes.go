package restapi

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

type routeOptions struct {
	cacheSeconds int
	// needsCatalog routes answer 503 until the catalog has loaded.
	needsCatalog bool
	// streaming routes skip compression so events are flushed as written.
	streaming bool
}

// SetRoutes registers every endpoint on mux. Health and metrics are neither
// authenticated nor rate limited.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", api.healthHandler)
	if api.Metrics != nil {
		mux.Handle("GET /metrics", api.Metrics.Handler())
	}

	catalog := routeOptions{cacheSeconds: cacheCatalog}
	loadedCatalog := routeOptions{cacheSeconds: cacheCatalog, needsCatalog: true}
	stations := routeOptions{cacheSeconds: cacheStations, needsCatalog: true}
	live := routeOptions{cacheSeconds: cacheLive, needsCatalog: true}

	api.handle(mux, "GET /api/current-time", routeOptions{cacheSeconds: cacheStations}, api.currentTimeHandler)
	api.handle(mux, "GET /api/config", catalog, api.configHandler)
	api.handle(mux, "GET /api/vehicle-types", catalog, api.vehicleTypesHandler)

	api.handle(mux, "GET /api/lines", loadedCatalog, api.linesHandler)
	api.handle(mux, "GET /api/lines/{id}", loadedCatalog, api.lineHandler)
	api.handle(mux, "GET /api/lines/{id}/vehicles", live, api.lineVehiclesHandler)

	api.handle(mux, "GET /api/stations", stations, api.stationsHandler)
	api.handle(mux, "GET /api/stations/{id}", stations, api.stationHandler)
	api.handle(mux, "GET /api/stations/{id}/arrivals", live, api.stationArrivalsHandler)

	api.handle(mux, "POST /api/sessions", live, api.createSessionHandler)
	api.handle(mux, "GET /api/sessions/{id}", live, api.sessionHandler)
	api.handle(mux, "PUT /api/sessions/{id}/region", live, api.sessionRegionHandler)
	api.handle(mux, "PUT /api/sessions/{id}/selection", live, api.sessionSelectionHandler)
	api.handle(mux, "DELETE /api/sessions/{id}", live, api.deleteSessionHandler)
	api.handle(mux, "GET /api/sessions/{id}/events",
		routeOptions{cacheSeconds: cacheLive, needsCatalog: true, streaming: true}, api.sessionEventsHandler)
}

// handle wraps h with, from the outside in: compression, Cache-Control,
// API key validation, rate limiting and the catalog readiness check.
func (api *RestAPI) handle(mux *http.ServeMux, pattern string, opts routeOptions, h http.HandlerFunc) {
	var handler http.Handler = h
	if opts.needsCatalog {
		handler = api.requireCatalog(handler)
	}
	if api.rateLimiter != nil {
		handler = api.rateLimiter.Handler()(handler)
	}
	handler = api.requireAPIKey(handler)
	handler = CacheControlMiddleware(opts.cacheSeconds, handler)
	if !opts.streaming {
		handler = gzhttp.GzipHandler(handler)
	}
	mux.Handle(pattern, handler)
}

func (api *RestAPI) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.sendUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireCatalog blocks data endpoints while the initial load is running or
// after it failed; the failure message is passed to the client.
func (api *RestAPI) requireCatalog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.Catalog == nil {
			api.sendError(w, r, http.StatusServiceUnavailable, "transit data not configured")
			return
		}
		if err := api.Catalog.Ready(); err != nil {
			api.sendError(w, r, http.StatusServiceUnavailable, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
