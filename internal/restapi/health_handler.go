package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/pietrosul/MyBusApp/internal/catalog"
)

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// healthHandler answers 200 once the transit catalog is loaded and 503
// while it is loading or after the initial load failed.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if api.Application == nil || api.Catalog == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "catalog not initialized",
		})
		return
	}

	status, message, _ := api.Catalog.Status()
	switch status {
	case catalog.StatusReady:
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
	case catalog.StatusFailed:
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "failed", Detail: message})
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "starting",
			Detail: "transit data is being loaded",
		})
	}
}
