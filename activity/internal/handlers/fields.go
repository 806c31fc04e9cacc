package handlers

import (
	"net/http"

	"github.com/pbi-manager/activity-sync/activity/internal/fields"
	"github.com/pbi-manager/activity-sync/common/httputil"
)

// ListFields handles GET /api/v1/fields.
func (h *Handler) ListFields(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.ListFields(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"fields": ds})
}

// UpdateField handles PATCH /api/v1/fields/{name}.
func (h *Handler) UpdateField(w http.ResponseWriter, r *http.Request) {
	var patch fields.Patch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	d, err := h.svc.UpdateField(r.Context(), r.PathValue("name"), patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}
