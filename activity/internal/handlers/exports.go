package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pbi-manager/activity-sync/activity/internal/export"
	"github.com/pbi-manager/activity-sync/common/httputil"
)

// DownloadExport handles GET /api/v1/exports/{name}.
func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !export.ValidFileName(name) {
		httputil.WriteError(w, http.StatusNotFound, "file not found")
		return
	}

	f, err := os.Open(filepath.Join(h.svc.ExportDir(), name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httputil.WriteError(w, http.StatusNotFound, "file not found")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}
