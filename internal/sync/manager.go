package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/heppoko-wizard/web-collections/internal/errs"
)

// Manager owns one orchestrator per registered backend and routes sync
// requests to the backend named in the request or, when unnamed, the one
// selected in settings.
type Manager struct {
	store         Snapshotter
	log           *zap.Logger
	orchestrators map[string]*Orchestrator
}

// NewManager registers the given backends.
func NewManager(store Snapshotter, log *zap.Logger, backends ...Backend) *Manager {
	m := &Manager{
		store:         store,
		log:           log,
		orchestrators: make(map[string]*Orchestrator, len(backends)),
	}
	for _, b := range backends {
		m.orchestrators[b.Name()] = NewOrchestrator(store, b, log)
	}
	return m
}

// Upload pushes the local snapshot through the named backend.
func (m *Manager) Upload(ctx context.Context, backend string) error {
	o, err := m.orchestrator(ctx, backend)
	if err != nil {
		return err
	}
	return o.Upload(ctx)
}

// Download pulls the remote snapshot through the named backend.
func (m *Manager) Download(ctx context.Context, backend string) error {
	o, err := m.orchestrator(ctx, backend)
	if err != nil {
		return err
	}
	return o.Download(ctx)
}

func (m *Manager) orchestrator(ctx context.Context, backend string) (*Orchestrator, error) {
	if backend == "" {
		settings, err := m.store.GetSettings(ctx)
		if err != nil {
			return nil, err
		}
		backend = settings.Backend
	}
	o, ok := m.orchestrators[backend]
	if !ok {
		return nil, errs.New("sync", fmt.Errorf("%w: unknown backend %q", errs.ErrValidation, backend))
	}
	return o, nil
}
