// Package handlers implements the activity HTTP API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/fields"
	"github.com/pbi-manager/activity-sync/activity/internal/jobs"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/query"
	"github.com/pbi-manager/activity-sync/activity/internal/repository"
	"github.com/pbi-manager/activity-sync/activity/internal/service"
	"github.com/pbi-manager/activity-sync/common/httputil"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// Service is the application surface the handlers call.
type Service interface {
	Ping(ctx context.Context) error
	ListEvents(ctx context.Context, params map[string]string, limit, offset int) ([]models.Event, int, error)
	Facets(ctx context.Context) ([]service.Facet, error)
	Chart(ctx context.Context) (*service.Chart, error)
	ListFields(ctx context.Context) ([]models.FieldDescriptor, error)
	UpdateField(ctx context.Context, name string, p fields.Patch) (*models.FieldDescriptor, error)
	ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
	LastSuccess(ctx context.Context) (*time.Time, error)
	GetTask(ctx context.Context, taskID string) (*models.TaskResult, error)
	ExportDir() string
}

// Submitter queues background tasks.
type Submitter interface {
	Submit(ctx context.Context, task jobs.Task) error
}

// Handler wires HTTP routes to the activity service and job queue.
type Handler struct {
	svc      Service
	queue    Submitter
	taskName string
	logger   *slog.Logger
}

func New(svc Service, queue Submitter, taskName string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, queue: queue, taskName: taskName, logger: logger}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /readyz.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed", slog.String("error", err.Error()))
		httputil.WriteError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeServiceError maps service errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidQuery), errors.Is(err, service.ErrNoChartFields):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, fields.ErrUnknownField):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrQueueClosed):
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeBadParam reports a rejected parameter, naming it in the details.
func writeBadParam(w http.ResponseWriter, name, message string) {
	httputil.WriteErrorDetails(w, http.StatusBadRequest, message, map[string]string{"param": name})
}

// intParam parses a positive integer query parameter, falling back to def.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return n, nil
}
