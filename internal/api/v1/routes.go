// Package v1 provides the read API over the content mirror.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/content-mirror/internal/api/common"
	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirror"
	"github.com/stacklok/content-mirror/internal/resolve"
	"github.com/stacklok/content-mirror/internal/versions"
)

// RecordsResponse lists raw records
type RecordsResponse struct {
	Items []content.Record `json:"items"`
	Total int              `json:"total"`
}

// ResolvedResponse lists entries with their links resolved
type ResolvedResponse struct {
	Items []resolve.ResolvedRecord `json:"items"`
	Total int                      `json:"total"`
}

// Routes holds the handlers of the v1 API
type Routes struct {
	service mirror.Service
}

// Router creates the router for the v1 API. Every data route syncs before reading.
func Router(svc mirror.Service) http.Handler {
	routes := &Routes{service: svc}

	r := chi.NewRouter()
	r.Get("/entries", routes.listEntries)
	r.Get("/entries/resolved", routes.listResolvedEntries)
	r.Get("/assets", routes.listAssets)
	r.Get("/all", routes.listAll)
	r.Post("/sync", routes.sync)

	return r
}

// HealthRouter serves liveness, readiness and version information
func HealthRouter(svc mirror.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)
	return r
}

func (rr *Routes) listEntries(w http.ResponseWriter, r *http.Request) {
	records, err := rr.service.GetEntries(r.Context())
	rr.writeRecords(w, "entries", records, err)
}

func (rr *Routes) listAssets(w http.ResponseWriter, r *http.Request) {
	records, err := rr.service.GetAssets(r.Context())
	rr.writeRecords(w, "assets", records, err)
}

func (rr *Routes) listAll(w http.ResponseWriter, r *http.Request) {
	records, err := rr.service.GetAll(r.Context())
	rr.writeRecords(w, "all records", records, err)
}

func (*Routes) writeRecords(w http.ResponseWriter, what string, records []content.Record, err error) {
	if err != nil {
		slog.Error("Failed to get "+what, "error", err)
		common.WriteMirrorError(w, err)
		return
	}
	if records == nil {
		records = []content.Record{}
	}
	common.WriteJSONResponse(w, RecordsResponse{Items: records, Total: len(records)}, http.StatusOK)
}

func (rr *Routes) listResolvedEntries(w http.ResponseWriter, r *http.Request) {
	resolved, err := rr.service.GetResolvedEntries(r.Context())
	if err != nil {
		slog.Error("Failed to get resolved entries", "error", err)
		common.WriteMirrorError(w, err)
		return
	}
	if resolved == nil {
		resolved = []resolve.ResolvedRecord{}
	}
	common.WriteJSONResponse(w, ResolvedResponse{Items: resolved, Total: len(resolved)}, http.StatusOK)
}

func (rr *Routes) sync(w http.ResponseWriter, r *http.Request) {
	result, err := rr.service.Sync(r.Context())
	if err != nil {
		slog.Error("Sync requested over HTTP failed", "error", err)
		common.WriteMirrorError(w, err)
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func readinessHandler(svc mirror.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteErrorResponse(w, "mirror not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.Get(), http.StatusOK)
}
