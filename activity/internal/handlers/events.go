package handlers

import (
	"net/http"

	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/query"
	"github.com/pbi-manager/activity-sync/common/httputil"
)

// ListEvents handles GET /api/v1/events. Filtering, search and ordering
// follow the query parameter contract; page and page_size select the page.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 1)
	if err != nil {
		writeBadParam(w, "page", err.Error())
		return
	}
	size, err := intParam(r, "page_size", defaultPageSize)
	if err != nil {
		writeBadParam(w, "page_size", err.Error())
		return
	}
	size = min(size, maxPageSize)
	offset := (page - 1) * size

	events, total, err := h.svc.ListEvents(r.Context(), query.FromValues(r.URL.Query()), size, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Page[models.Event]{
		Items:  events,
		Total:  total,
		Limit:  size,
		Offset: offset,
	})
}

// Facets handles GET /api/v1/events/facets.
func (h *Handler) Facets(w http.ResponseWriter, r *http.Request) {
	facets, err := h.svc.Facets(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"facets": facets})
}

// Chart handles GET /api/v1/events/chart.
func (h *Handler) Chart(w http.ResponseWriter, r *http.Request) {
	chart, err := h.svc.Chart(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, chart)
}
