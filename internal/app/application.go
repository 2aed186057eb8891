package app

import (
	"log/slog"

	"github.com/pietrosul/MyBusApp/internal/appconf"
	"github.com/pietrosul/MyBusApp/internal/arrivals"
	"github.com/pietrosul/MyBusApp/internal/catalog"
	"github.com/pietrosul/MyBusApp/internal/clock"
	"github.com/pietrosul/MyBusApp/internal/metrics"
	"github.com/pietrosul/MyBusApp/internal/stb"
	"github.com/pietrosul/MyBusApp/internal/viewport"
)

// Application holds the dependencies shared by HTTP handlers, helpers and
// middleware. It is built once in cmd/api and passed down explicitly.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Catalog  *catalog.Manager
	Resolver *arrivals.Resolver
	Sessions *viewport.Registry
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	// STB is set when the REST source is in use; the debug page probes it.
	STB *stb.Client
}

// ViewportConfig derives the per-session settings from the configuration.
func (app *Application) ViewportConfig() viewport.Config {
	return viewport.Config{
		VisibilityThreshold: app.Config.VisibilityThreshold,
		MinSpan:             app.Config.MinSpan,
		MaxSpan:             app.Config.MaxSpan,
		DebounceWindow:      app.Config.DebounceWindow,
	}
}
