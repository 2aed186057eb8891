// Package webui serves the browser-facing pages: the optional map client
// and the development debug dump.
package webui

import (
	"log/slog"
	"net/http"

	"github.com/pietrosul/MyBusApp/internal/app"
)

type WebUI struct {
	*app.Application
}

func (webUI *WebUI) logger() *slog.Logger {
	if webUI.Application == nil || webUI.Logger == nil {
		return slog.Default().With(slog.String("component", "webui"))
	}
	return webUI.Logger.With(slog.String("component", "webui"))
}

// SetWebUIRoutes registers the debug page, and the static map client when a
// static directory is configured.
func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug", webUI.debugIndexHandler)
	if webUI.Config.StaticDir != "" {
		mux.HandleFunc("GET /{$}", webUI.staticHandler)
		mux.HandleFunc("GET /app/{file}", webUI.staticHandler)
	}
}
