package app

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"chatdb/internal/repair"
	"chatdb/pkg/utils"
)

// routes builds the admin HTTP surface: health, metrics, table listing and
// an on-demand repair trigger.
func (a *App) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/v1/tables", a.tablesHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/repair", a.repairHandler).Methods(http.MethodPost)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	return r
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	// readiness means the mapper can reach the platform
	if _, err := a.st.ListTables(r.Context()); err != nil {
		utils.JSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func (a *App) tablesHandler(w http.ResponseWriter, r *http.Request) {
	schemas, err := a.st.ListTables(r.Context())
	if err != nil {
		utils.JSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(schemas)
}

func (a *App) repairHandler(w http.ResponseWriter, r *http.Request) {
	if err := repair.RunOnce(r.Context(), a.st); err != nil {
		utils.JSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "done"})
}
