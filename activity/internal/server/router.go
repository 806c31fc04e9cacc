// Package server assembles the activity HTTP routes.
package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pbi-manager/activity-sync/activity/internal/handlers"
	"github.com/pbi-manager/activity-sync/common/middleware"
)

func NewRouter(h *handlers.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/events", h.ListEvents)
	mux.HandleFunc("GET /api/v1/events/facets", h.Facets)
	mux.HandleFunc("GET /api/v1/events/chart", h.Chart)

	mux.HandleFunc("GET /api/v1/fields", h.ListFields)
	mux.HandleFunc("POST /api/v1/fields/sync", h.SyncFields)
	mux.HandleFunc("PATCH /api/v1/fields/{name}", h.UpdateField)

	mux.HandleFunc("POST /api/v1/sync", h.TriggerSync)
	mux.HandleFunc("GET /api/v1/sync/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/sync/status", h.SyncStatus)

	mux.HandleFunc("POST /api/v1/retention/events", h.SweepEvents)
	mux.HandleFunc("POST /api/v1/retention/exports", h.SweepExports)

	mux.HandleFunc("POST /api/v1/exports", h.RequestExport)
	mux.HandleFunc("GET /api/v1/exports/{name}", h.DownloadExport)

	mux.HandleFunc("GET /api/v1/tasks/{id}", h.GetTask)

	if logger == nil {
		logger = slog.Default()
	}
	var handler http.Handler = mux
	handler = middleware.Recover(logger)(handler)
	handler = middleware.AccessLog(logger)(handler)
	return middleware.RequestID(handler)
}
