package webui

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/pietrosul/MyBusApp/internal/appconf"
	"github.com/pietrosul/MyBusApp/internal/transit"
	"github.com/pietrosul/MyBusApp/internal/viewport"
)

const probeTimeout = 30 * time.Second

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

type debugData struct {
	Title     string
	Pre       string
	DataTypes []string
}

var dataTypes = []string{"status", "config", "lines", "stations", "vehicle_types", "sessions", "probe"}

type catalogStatus struct {
	Status      string
	Message     string
	LastUpdated time.Time
	Remote      bool
	Lines       int
	Stations    int
}

func writeDebugData(w http.ResponseWriter, logger *slog.Logger, title string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := debugTemplate.Execute(w, debugData{
		Title:     title,
		Pre:       spew.Sdump(data),
		DataTypes: dataTypes,
	})
	if err != nil {
		logger.Error("failed to execute debug template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// redactedConfig hides API keys from the dump.
func redactedConfig(cfg appconf.Config) appconf.Config {
	redact := func(keys []string) []string {
		out := make([]string, len(keys))
		for i := range keys {
			out[i] = "<redacted>"
		}
		return out
	}
	cfg.ApiKeys = redact(cfg.ApiKeys)
	cfg.ExemptApiKeys = redact(cfg.ExemptApiKeys)
	return cfg
}

func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}
	logger := webUI.logger()

	var data any
	var title string

	switch dataType := r.URL.Query().Get("dataType"); {
	case dataType == "config":
		data = redactedConfig(webUI.Config)
		title = "Configuration"
	case dataType == "vehicle_types":
		data = vehicleTypeTable()
		title = "Vehicle Types"
	case dataType == "sessions":
		data = map[string]int{"active": webUI.sessionCount()}
		title = "Viewport Sessions"
	case webUI.Catalog == nil:
		data = map[string]string{"error": "catalog not initialized"}
		title = "Catalog unavailable"
	case dataType == "status":
		status, message, updated := webUI.Catalog.Status()
		lines, stations := webUI.Catalog.Sizes()
		data = catalogStatus{
			Status:      status.String(),
			Message:     message,
			LastUpdated: updated,
			Remote:      webUI.Catalog.IsRemote(),
			Lines:       lines,
			Stations:    stations,
		}
		title = "Catalog Status"
	case dataType == "lines":
		data = webUI.Catalog.Lines()
		title = "Catalog - Lines"
	case dataType == "stations":
		stations, err := webUI.Catalog.StationsInBounds(r.Context(), viewport.DefaultRegion.Bounds())
		if err != nil {
			data = map[string]string{"error": err.Error()}
		} else {
			data = stations
		}
		title = "Catalog - Stations in the initial region"
	case dataType == "probe":
		if webUI.STB == nil {
			data = map[string]string{"error": "the REST data source is not in use"}
		} else {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			data = webUI.STB.Probe(ctx)
			cancel()
		}
		title = "REST Source - Endpoint Probe"
	default:
		data = map[string]string{
			"error": "Please use one of the following: status, config, lines, stations, vehicle_types, sessions, probe.",
		}
		title = "Choose a data type"
	}

	writeDebugData(w, logger, title, data)
}

func (webUI *WebUI) sessionCount() int {
	if webUI.Sessions == nil {
		return 0
	}
	return webUI.Sessions.Len()
}

type vehicleTypeRow struct {
	Name  string
	Color string
}

func vehicleTypeTable() []vehicleTypeRow {
	types := transit.AllVehicleTypes()
	rows := make([]vehicleTypeRow, 0, len(types))
	for _, v := range types {
		rows = append(rows, vehicleTypeRow{Name: v.String(), Color: v.Color()})
	}
	return rows
}
