// Package restapi exposes the transit catalog and the viewport sessions over
// HTTP with the JSON response envelope used by every endpoint.
package restapi

import (
	"time"

	"github.com/pietrosul/MyBusApp/internal/app"
)

// RestAPI wires the HTTP handlers to the shared application state.
type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

// NewRestAPI creates the API. A rate limiter is only created when the
// configured limit is positive.
func NewRestAPI(application *app.Application) *RestAPI {
	api := &RestAPI{Application: application}
	if application != nil && application.Config.RateLimit > 0 {
		api.rateLimiter = NewRateLimitMiddleware(application.Config.RateLimit, time.Second, application.Config.ExemptApiKeys, application.Clock)
	}
	return api
}

// Shutdown stops background goroutines owned by the API.
func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}
