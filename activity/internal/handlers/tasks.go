package handlers

import (
	"net/http"
	"path"

	"github.com/pbi-manager/activity-sync/activity/internal/jobs"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/query"
	"github.com/pbi-manager/activity-sync/common/httputil"
)

type syncRequest struct {
	DaysBefore *int `json:"days_before,omitempty"`
}

type retentionRequest struct {
	RetentionDays  int `json:"retention_days,omitempty"`
	RetentionHours int `json:"retention_hours,omitempty"`
}

// TaskAccepted is returned for every queued task.
type TaskAccepted struct {
	TaskID string `json:"task_id"`
	Task   string `json:"task"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, name string, args map[string]any) {
	task := jobs.NewTask(name, args)
	if err := h.queue.Submit(r.Context(), task); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, TaskAccepted{TaskID: task.ID, Task: name})
}

// TriggerSync handles POST /api/v1/sync.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	args := map[string]any{}
	if req.DaysBefore != nil {
		if *req.DaysBefore < 1 {
			writeBadParam(w, "days_before", "days_before must be positive")
			return
		}
		args["days_before"] = *req.DaysBefore
	}
	h.submit(w, r, jobs.TaskSync, args)
}

// SweepEvents handles POST /api/v1/retention/events.
func (h *Handler) SweepEvents(w http.ResponseWriter, r *http.Request) {
	var req retentionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.submit(w, r, jobs.TaskSweepEvents, map[string]any{"retention_days": req.RetentionDays})
}

// SweepExports handles POST /api/v1/retention/exports.
func (h *Handler) SweepExports(w http.ResponseWriter, r *http.Request) {
	var req retentionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.submit(w, r, jobs.TaskSweepExports, map[string]any{"retention_hours": req.RetentionHours})
}

// SyncFields handles POST /api/v1/fields/sync.
func (h *Handler) SyncFields(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, jobs.TaskSyncFields, nil)
}

// RequestExport handles POST /api/v1/exports. Filters come from the JSON
// body when present, otherwise from the query string.
func (h *Handler) RequestExport(w http.ResponseWriter, r *http.Request) {
	filter := query.FromValues(r.URL.Query())
	var body map[string]string
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body) > 0 {
		filter = body
	}

	args := make(map[string]any, len(filter))
	for k, v := range filter {
		args[k] = v
	}
	h.submit(w, r, jobs.TaskExport, args)
}

// TaskStatus is a recorded task plus, for finished exports, the download link.
type TaskStatus struct {
	*models.TaskResult
	DownloadURL string `json:"download_url,omitempty"`
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	tr, err := h.svc.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := TaskStatus{TaskResult: tr}
	if tr.TaskName == jobs.TaskExport && tr.Status == models.StatusSuccess {
		if p, ok := tr.Result.(string); ok {
			status.DownloadURL = "/api/v1/exports/" + path.Base(p)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// ListRuns handles GET /api/v1/sync/runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		writeBadParam(w, "limit", err.Error())
		return
	}
	runs, err := h.svc.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// SyncStatus handles GET /api/v1/sync/status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	last, err := h.svc.LastSuccess(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"task_name":    h.taskName,
		"last_success": last,
	})
}
