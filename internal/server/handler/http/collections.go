// Package http provides the HTTP handlers that expose the collection
// store and the sync engine to the presentation layer.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heppoko-wizard/web-collections/internal/errs"
	"github.com/heppoko-wizard/web-collections/internal/models"
	"github.com/heppoko-wizard/web-collections/internal/store"
)

// CollectionStore defines the store operations required by the HTTP
// handlers.
type CollectionStore interface {
	CreateCollection(ctx context.Context, name string) (*models.Collection, error)
	GetAllCollections(ctx context.Context) ([]models.Collection, error)
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
	UpdateCollection(ctx context.Context, id string, patch store.CollectionPatch) error
	DeleteCollection(ctx context.Context, id string) error
	AddItem(ctx context.Context, collectionID string, draft models.Item) (*models.Item, error)
	RemoveItem(ctx context.Context, collectionID, itemID string) error
	UpdateItem(ctx context.Context, collectionID, itemID string, patch store.ItemPatch) (*models.Item, error)
	ReorderItems(ctx context.Context, collectionID string, orderedIDs []string) error
	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error
	ExportJSON(ctx context.Context) (string, error)
	ImportJSON(ctx context.Context, data string) error
	ExportCSV(ctx context.Context) (string, error)
}

// CollectionsHandler handles HTTP requests for collection and item CRUD,
// settings and export/import.
type CollectionsHandler struct {
	Store CollectionStore
}

// Create handles POST /api/collections.
func (h *CollectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	collection, err := h.Store.CreateCollection(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, collection)
}

// List handles GET /api/collections.
func (h *CollectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	collections, err := h.Store.GetAllCollections(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collections)
}

// Get handles GET /api/collections/{id}.
func (h *CollectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	collection, err := h.Store.GetCollection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collection)
}

// Update handles PATCH /api/collections/{id}.
func (h *CollectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch store.CollectionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.Store.UpdateCollection(r.Context(), chi.URLParam(r, "id"), patch); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/collections/{id}.
func (h *CollectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteCollection(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /api/collections/{id}/items.
func (h *CollectionsHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var draft models.Item
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	item, err := h.Store.AddItem(r.Context(), chi.URLParam(r, "id"), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// UpdateItem handles PATCH /api/collections/{id}/items/{itemID}.
func (h *CollectionsHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var patch store.ItemPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	item, err := h.Store.UpdateItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// RemoveItem handles DELETE /api/collections/{id}/items/{itemID}.
func (h *CollectionsHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reorder handles PUT /api/collections/{id}/items/order.
func (h *CollectionsHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemIDs []string `json:"itemIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.Store.ReorderItems(r.Context(), chi.URLParam(r, "id"), req.ItemIDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings handles GET /api/settings.
func (h *CollectionsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.GetSettings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// SaveSettings handles PUT /api/settings.
func (h *CollectionsHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.Store.SaveSettings(r.Context(), &settings); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handles GET /api/export.
func (h *CollectionsHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.Store.ExportJSON(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(data))
}

// ExportCSV handles GET /api/export.csv.
func (h *CollectionsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	data, err := h.Store.ExportCSV(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte(data))
}

// Import handles POST /api/import with the raw export JSON as body.
func (h *CollectionsHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.Store.ImportJSON(r.Context(), string(body)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrAuthentication):
		status = http.StatusUnauthorized
	case errors.Is(err, errs.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrNetwork):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}
