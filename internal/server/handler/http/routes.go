package http

import (
	"net/http"

	"github.com/heppoko-wizard/web-collections/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler serving the collection store and
// sync API. It applies request logging and mounts every store and sync
// operation under /api.
//
// Routes:
//
//	POST   /api/collections                       → create collection
//	GET    /api/collections                       → list collections
//	GET    /api/collections/{id}                  → get one collection
//	PATCH  /api/collections/{id}                  → update collection fields
//	DELETE /api/collections/{id}                  → delete collection
//	POST   /api/collections/{id}/items            → add item
//	PATCH  /api/collections/{id}/items/{itemID}   → update item fields
//	DELETE /api/collections/{id}/items/{itemID}   → remove item
//	PUT    /api/collections/{id}/items/order      → reorder items
//	GET    /api/settings                          → read settings
//	PUT    /api/settings                          → replace settings
//	GET    /api/export                            → export JSON snapshot
//	GET    /api/export.csv                        → export CSV
//	POST   /api/import                            → import JSON snapshot
//	POST   /api/sync/upload                       → push snapshot to backend
//	POST   /api/sync/download                     → pull snapshot from backend
func NewRouter(
	collectionsHandler *CollectionsHandler,
	syncHandler *SyncHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/collections", func(r chi.Router) {
			r.Post("/", collectionsHandler.Create)
			r.Get("/", collectionsHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", collectionsHandler.Get)
				r.Patch("/", collectionsHandler.Update)
				r.Delete("/", collectionsHandler.Delete)
				r.Post("/items", collectionsHandler.AddItem)
				r.Put("/items/order", collectionsHandler.Reorder)
				r.Patch("/items/{itemID}", collectionsHandler.UpdateItem)
				r.Delete("/items/{itemID}", collectionsHandler.RemoveItem)
			})
		})

		r.Get("/settings", collectionsHandler.GetSettings)
		r.Put("/settings", collectionsHandler.SaveSettings)

		r.Get("/export", collectionsHandler.Export)
		r.Get("/export.csv", collectionsHandler.ExportCSV)
		r.Post("/import", collectionsHandler.Import)

		r.Post("/sync/upload", syncHandler.Upload)
		r.Post("/sync/download", syncHandler.Download)
	})

	return r
}
