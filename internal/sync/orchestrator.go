package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heppoko-wizard/web-collections/internal/crypto"
	"github.com/heppoko-wizard/web-collections/internal/errs"
	"github.com/heppoko-wizard/web-collections/internal/models"
)

// State is the orchestrator's position in one sync invocation.
type State int

const (
	// StateIdle means no sync is in flight.
	StateIdle State = iota
	// StateAuthenticating means the backend credential is being acquired.
	StateAuthenticating
	// StateTransferring means the payload is moving.
	StateTransferring
	// StateDone means the last invocation finished successfully.
	StateDone
	// StateFailed means the last invocation surfaced an error.
	StateFailed
)

// String returns the state label.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateTransferring:
		return "transferring"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Snapshotter is the collection-store surface the orchestrator needs.
type Snapshotter interface {
	ExportJSON(ctx context.Context) (string, error)
	ImportJSON(ctx context.Context, data string) error
	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error
}

// Orchestrator drives one backend through the push/pull contract,
// serializing the store, encrypting when the backend requires it and
// recording the last-sync timestamp. Failures are surfaced to the
// caller unchanged; nothing is retried.
type Orchestrator struct {
	store   Snapshotter
	backend Backend
	log     *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	state State
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorClock overrides the time source.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator constructs an orchestrator over the given store and
// backend.
func NewOrchestrator(store Snapshotter, backend Backend, log *zap.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		backend: backend,
		log:     log,
		now:     time.Now,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current machine state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.log.Debug("sync state", zap.String("backend", o.backend.Name()), zap.Stringer("state", s))
}

// finish records the terminal state for this invocation and returns err
// unchanged. A failure is logged through StateFailed and the machine
// then returns to Idle, ready for the next invocation.
func (o *Orchestrator) finish(err error) error {
	if err != nil {
		o.setState(StateFailed)
		o.log.Error("sync failed", zap.String("backend", o.backend.Name()), zap.Error(err))
		o.setState(StateIdle)
		return err
	}
	o.setState(StateDone)
	return nil
}

// Upload serializes the store, encrypts when the backend requires it and
// pushes the snapshot, then persists lastSyncTime.
func (o *Orchestrator) Upload(ctx context.Context) error {
	o.setState(StateAuthenticating)

	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		return o.finish(err)
	}
	if o.backend.Encrypted() && (!settings.SyncEnabled || settings.SyncPassword == "") {
		return o.finish(errs.New("upload", fmt.Errorf("%w: sync is not configured", errs.ErrValidation)))
	}

	cred, err := o.backend.Authenticate(ctx)
	if err != nil {
		return o.finish(err)
	}

	o.setState(StateTransferring)
	snapshot, err := o.store.ExportJSON(ctx)
	if err != nil {
		return o.finish(err)
	}

	payload := []byte(snapshot)
	if o.backend.Encrypted() {
		encrypted, err := crypto.Encrypt(snapshot, settings.SyncPassword)
		if err != nil {
			return o.finish(err)
		}
		payload, err = json.Marshal(encrypted)
		if err != nil {
			return o.finish(errs.New("upload", err))
		}
	}

	if err := o.backend.Push(ctx, cred, payload); err != nil {
		return o.finish(err)
	}

	settings.LastSyncTime = o.now().UnixMilli()
	if err := o.store.SaveSettings(ctx, settings); err != nil {
		return o.finish(err)
	}
	o.log.Info("upload complete", zap.String("backend", o.backend.Name()))
	return o.finish(nil)
}

// Download pulls the remote snapshot, decrypts when the backend requires
// it and replaces the local store wholesale. An absent remote artifact
// is a no-op that leaves the store and lastSyncTime untouched.
func (o *Orchestrator) Download(ctx context.Context) error {
	o.setState(StateAuthenticating)

	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		return o.finish(err)
	}
	if o.backend.Encrypted() && (!settings.SyncEnabled || settings.SyncPassword == "") {
		return o.finish(errs.New("download", fmt.Errorf("%w: sync is not configured", errs.ErrValidation)))
	}

	cred, err := o.backend.Authenticate(ctx)
	if err != nil {
		return o.finish(err)
	}

	o.setState(StateTransferring)
	payload, ok, err := o.backend.Pull(ctx, cred)
	if err != nil {
		return o.finish(err)
	}
	if !ok {
		o.log.Info("nothing to download", zap.String("backend", o.backend.Name()))
		return o.finish(nil)
	}

	snapshot := string(payload)
	if o.backend.Encrypted() {
		var encrypted models.EncryptedPayload
		if err := json.Unmarshal(payload, &encrypted); err != nil {
			return o.finish(errs.New("download", fmt.Errorf("%w: malformed encrypted payload: %v", errs.ErrValidation, err)))
		}
		snapshot, err = crypto.DecryptPayload(&encrypted, settings.SyncPassword)
		if err != nil {
			return o.finish(err)
		}
	}

	if err := o.store.ImportJSON(ctx, snapshot); err != nil {
		return o.finish(err)
	}

	settings.LastSyncTime = o.now().UnixMilli()
	if err := o.store.SaveSettings(ctx, settings); err != nil {
		return o.finish(err)
	}
	o.log.Info("download complete", zap.String("backend", o.backend.Name()))
	return o.finish(nil)
}
