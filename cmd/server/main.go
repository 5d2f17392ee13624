// Package main initializes and starts the web-collections daemon,
// setting up configuration, logging, the persistence backend, the
// collection store, the sync backends and the HTTP API.
package main

import (
	"cmp"
	"fmt"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/heppoko-wizard/web-collections/internal/config"
	"github.com/heppoko-wizard/web-collections/internal/images"
	"github.com/heppoko-wizard/web-collections/internal/kv"
	"github.com/heppoko-wizard/web-collections/internal/logger"
	"github.com/heppoko-wizard/web-collections/internal/server/handler/http"
	"github.com/heppoko-wizard/web-collections/internal/store"
	"github.com/heppoko-wizard/web-collections/internal/sync"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log, err := logger.New("info")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	// Open the persistence backend: PostgreSQL when a DSN is configured,
	// the local store file otherwise.
	var backend kv.Backend
	if options.DatabaseDSN != "" {
		backend, err = kv.OpenPostgres(options.DatabaseDSN)
	} else {
		backend, err = kv.OpenBolt(options.StorePath)
	}
	if err != nil {
		log.Fatal("cannot open persistence backend", zap.Error(err))
	}
	defer func() { _ = backend.Close() }()

	// Build the collection store with the image-embedding collaborator.
	collections := store.New(backend,
		store.WithLogger(log),
		store.WithImageOptimizer(images.New(nil)),
	)

	// Register the sync backends.
	backends := []sync.Backend{
		sync.NewDrive(backend, options.DriveClientID, options.DriveClientSecret, log),
		sync.NewGist(backend, nil, log),
		sync.NewFolder(backend, log),
	}
	if options.S3Bucket != "" {
		backends = append(backends, sync.NewS3(options.S3Bucket, options.S3Prefix, options.S3Region, log))
	}
	manager := sync.NewManager(collections, log, backends...)

	// Create HTTP handlers for the store and sync endpoints.
	collectionsHandler := &http.CollectionsHandler{Store: collections}
	syncHandler := &http.SyncHandler{SyncService: manager}

	// Build the router with middleware and routes.
	router := http.NewRouter(collectionsHandler, syncHandler, log)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting HTTP server", zap.String("addr", options.Addr))
	if err := server.ListenAndServe(); err != nil {
		log.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
