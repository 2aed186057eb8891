package restapi

import (
	"net/http"

	"github.com/pietrosul/MyBusApp/internal/buildinfo"
	"github.com/pietrosul/MyBusApp/internal/models"
	"github.com/pietrosul/MyBusApp/internal/viewport"
)

// configHandler describes the service to map clients: where to open the
// map, when to show stations and which data source answers.
func (api *RestAPI) configHandler(w http.ResponseWriter, r *http.Request) {
	cfg := api.Config
	entry := models.ConfigModel{
		Id:   "mybus-bucharest",
		Name: "MyBus București",
		Build: models.BuildInfo{
			Version:     buildinfo.Version,
			CommitHash:  buildinfo.CommitHash,
			CommitShort: buildinfo.ShortHash(),
			BuildTime:   buildinfo.BuildTime,
		},
		DataSource:          cfg.DataSource,
		Status:              "unavailable",
		InitialRegion:       viewport.DefaultRegion,
		VisibilityThreshold: cfg.VisibilityThreshold,
		MinSpan:             cfg.MinSpan,
		MaxSpan:             cfg.MaxSpan,
		MaxStations:         cfg.MaxStations,
		DebounceMs:          cfg.DebounceWindow.Milliseconds(),
	}

	if api.Catalog != nil {
		status, _, _ := api.Catalog.Status()
		entry.Status = status.String()
		entry.LiveArrivals = api.Catalog.IsRemote()
		if coverage, ok := api.Catalog.RegionBounds(); ok {
			entry.CoverageRegion = &coverage
		}
	}

	api.sendResponse(w, r, models.NewEntryResponse(entry, api.clock()))
}

func (api *RestAPI) vehicleTypesHandler(w http.ResponseWriter, r *http.Request) {
	api.sendResponse(w, r, models.NewListResponse(models.NewVehicleTypeEntries(), false, api.clock()))
}
