package http

import (
	"context"
	"net/http"
)

// SyncService defines the synchronization operations required by the
// SyncHandler. The backend argument names a registered sync backend;
// empty means the one selected in settings.
type SyncService interface {
	// Upload pushes the local snapshot to the remote artifact.
	Upload(ctx context.Context, backend string) error
	// Download pulls the remote artifact into the local store.
	Download(ctx context.Context, backend string) error
}

// SyncHandler handles HTTP requests for snapshot synchronization.
type SyncHandler struct {
	SyncService SyncService
}

// Upload handles POST /api/sync/upload requests. The optional "backend"
// query parameter overrides the configured backend.
func (h *SyncHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := h.SyncService.Upload(r.Context(), r.URL.Query().Get("backend")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download handles POST /api/sync/download requests. The optional
// "backend" query parameter overrides the configured backend.
func (h *SyncHandler) Download(w http.ResponseWriter, r *http.Request) {
	if err := h.SyncService.Download(r.Context(), r.URL.Query().Get("backend")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
