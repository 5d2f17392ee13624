package sync_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heppoko-wizard/web-collections/internal/crypto"
	"github.com/heppoko-wizard/web-collections/internal/errs"
	"github.com/heppoko-wizard/web-collections/internal/kv"
	"github.com/heppoko-wizard/web-collections/internal/models"
	"github.com/heppoko-wizard/web-collections/internal/store"
	syncer "github.com/heppoko-wizard/web-collections/internal/sync"
)

// fakeBackend is a Backend with pluggable behavior and an in-memory
// remote artifact.
type fakeBackend struct {
	name      string
	encrypted bool
	authErr   error
	pushErr   error
	pullErr   error
	remote    []byte
	hasRemote bool
	pushed    int
}

func (b *fakeBackend) Name() string    { return b.name }
func (b *fakeBackend) Encrypted() bool { return b.encrypted }

func (b *fakeBackend) Authenticate(context.Context) (syncer.Credential, error) {
	if b.authErr != nil {
		return nil, b.authErr
	}
	return "cred", nil
}

func (b *fakeBackend) Push(_ context.Context, _ syncer.Credential, payload []byte) error {
	if b.pushErr != nil {
		return b.pushErr
	}
	b.remote = payload
	b.hasRemote = true
	b.pushed++
	return nil
}

func (b *fakeBackend) Pull(context.Context, syncer.Credential) ([]byte, bool, error) {
	if b.pullErr != nil {
		return nil, false, b.pullErr
	}
	return b.remote, b.hasRemote, nil
}

func newSyncedStore(t *testing.T, settings *models.Settings) *store.Store {
	t.Helper()
	s := store.New(kv.NewMemory())
	require.NoError(t, s.SaveSettings(context.Background(), settings))
	return s
}

func TestOrchestrator_UploadPlaintext(t *testing.T) {
	ctx := context.Background()
	s := newSyncedStore(t, &models.Settings{})
	collection, err := s.CreateCollection(ctx, "Reading")
	require.NoError(t, err)

	backend := &fakeBackend{name: "folder"}
	fixed := time.UnixMilli(1700000000000)
	o := syncer.NewOrchestrator(s, backend, zap.NewNop(),
		syncer.WithOrchestratorClock(func() time.Time { return fixed }))

	require.NoError(t, o.Upload(ctx))
	assert.Equal(t, syncer.StateDone, o.State())

	// pushed payload is the plain JSON snapshot
	var snapshot models.Export
	require.NoError(t, json.Unmarshal(backend.remote, &snapshot))
	require.Len(t, snapshot.Collections, 1)
	assert.Equal(t, collection.ID, snapshot.Collections[0].ID)

	settings, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixed.UnixMilli(), settings.LastSyncTime)
}

func TestOrchestrator_UploadEncrypted(t *testing.T) {
	ctx := context.Background()
	s := newSyncedStore(t, &models.Settings{SyncEnabled: true, SyncPassword: "pw"})
	_, err := s.CreateCollection(ctx, "Secret")
	require.NoError(t, err)

	backend := &fakeBackend{name: "drive", encrypted: true}
	o := syncer.NewOrchestrator(s, backend, zap.NewNop())

	require.NoError(t, o.Upload(ctx))

	var payload models.EncryptedPayload
	require.NoError(t, json.Unmarshal(backend.remote, &payload))
	assert.NotEmpty(t, payload.Encrypted)
	assert.NotEmpty(t, payload.Salt)
	assert.NotEmpty(t, payload.IV)

	// the payload decrypts back to the snapshot with the sync password
	plain, err := crypto.DecryptPayload(&payload, "pw")
	require.NoError(t, err)
	var snapshot models.Export
	require.NoError(t, json.Unmarshal([]byte(plain), &snapshot))
	require.Len(t, snapshot.Collections, 1)
	assert.Equal(t, "Secret", snapshot.Collections[0].Name)
}

func TestOrchestrator_UploadEncryptedRequiresConfiguration(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{name: "drive", encrypted: true}

	for _, settings := range []*models.Settings{
		{},
		{SyncEnabled: true},
		{SyncPassword: "pw"},
	} {
		s := newSyncedStore(t, settings)
		o := syncer.NewOrchestrator(s, backend, zap.NewNop())
		err := o.Upload(ctx)
		assert.True(t, errors.Is(err, errs.ErrValidation))
		assert.Equal(t, syncer.StateIdle, o.State())
	}
	assert.Zero(t, backend.pushed)
}

func TestOrchestrator_UploadAuthFailure(t *testing.T) {
	ctx := context.Background()
	s := newSyncedStore(t, &models.Settings{})
	backend := &fakeBackend{name: "gist", authErr: errs.NewBackend("gist", "authenticate", errs.ErrAuthentication)}
	o := syncer.NewOrchestrator(s, backend, zap.NewNop())

	err := o.Upload(ctx)
	assert.True(t, errors.Is(err, errs.ErrAuthentication))

	// after surfacing the failure the machine returns to idle
	assert.Equal(t, syncer.StateIdle, o.State())

	// a failed upload must not record a sync time
	settings, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Zero(t, settings.LastSyncTime)
}

func TestOrchestrator_ReusableAfterFailure(t *testing.T) {
	ctx := context.Background()
	s := newSyncedStore(t, &models.Settings{})
	backend := &fakeBackend{name: "folder", pushErr: errs.NewBackend("folder", "push", errs.ErrPermission)}
	o := syncer.NewOrchestrator(s, backend, zap.NewNop())

	require.Error(t, o.Upload(ctx))
	assert.Equal(t, syncer.StateIdle, o.State())

	backend.pushErr = nil
	require.NoError(t, o.Upload(ctx))
	assert.Equal(t, syncer.StateDone, o.State())
	assert.Equal(t, 1, backend.pushed)
}

func TestOrchestrator_DownloadReplacesStore(t *testing.T) {
	ctx := context.Background()
	source := newSyncedStore(t, &models.Settings{})
	_, err := source.CreateCollection(ctx, "Remote")
	require.NoError(t, err)
	snapshot, err := source.ExportJSON(ctx)
	require.NoError(t, err)

	target := newSyncedStore(t, &models.Settings{})
	_, err = target.CreateCollection(ctx, "Local")
	require.NoError(t, err)

	backend := &fakeBackend{name: "folder", remote: []byte(snapshot), hasRemote: true}
	fixed := time.UnixMilli(1700000000000)
	o := syncer.NewOrchestrator(target, backend, zap.NewNop(),
		syncer.WithOrchestratorClock(func() time.Time { return fixed }))

	require.NoError(t, o.Download(ctx))
	assert.Equal(t, syncer.StateDone, o.State())

	collections, err := target.GetAllCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, "Remote", collections[0].Name)

	settings, err := target.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixed.UnixMilli(), settings.LastSyncTime)
}

func TestOrchestrator_DownloadEncryptedRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := newSyncedStore(t, &models.Settings{SyncEnabled: true, SyncPassword: "pw"})
	_, err := source.CreateCollection(ctx, "Secret")
	require.NoError(t, err)

	backend := &fakeBackend{name: "drive", encrypted: true}
	require.NoError(t, syncer.NewOrchestrator(source, backend, zap.NewNop()).Upload(ctx))

	target := newSyncedStore(t, &models.Settings{SyncEnabled: true, SyncPassword: "pw"})
	require.NoError(t, syncer.NewOrchestrator(target, backend, zap.NewNop()).Download(ctx))

	collections, err := target.GetAllCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, "Secret", collections[0].Name)
}

func TestOrchestrator_DownloadWrongPassword(t *testing.T) {
	ctx := context.Background()
	source := newSyncedStore(t, &models.Settings{SyncEnabled: true, SyncPassword: "pw"})
	backend := &fakeBackend{name: "drive", encrypted: true}
	require.NoError(t, syncer.NewOrchestrator(source, backend, zap.NewNop()).Upload(ctx))

	target := newSyncedStore(t, &models.Settings{SyncEnabled: true, SyncPassword: "other"})
	err := syncer.NewOrchestrator(target, backend, zap.NewNop()).Download(ctx)
	assert.True(t, errors.Is(err, errs.ErrAuthentication))
}

func TestOrchestrator_DownloadMalformedEncryptedPayload(t *testing.T) {
	ctx := context.Background()
	s := newSyncedStore(t, &models.Settings{SyncEnabled: true, SyncPassword: "pw"})
	backend := &fakeBackend{name: "drive", encrypted: true, remote: []byte("not json"), hasRemote: true}

	err := syncer.NewOrchestrator(s, backend, zap.NewNop()).Download(ctx)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestOrchestrator_DownloadAbsentRemoteIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newSyncedStore(t, &models.Settings{})
	_, err := s.CreateCollection(ctx, "Keep")
	require.NoError(t, err)

	backend := &fakeBackend{name: "folder"}
	o := syncer.NewOrchestrator(s, backend, zap.NewNop())

	require.NoError(t, o.Download(ctx))
	assert.Equal(t, syncer.StateDone, o.State())

	collections, err := s.GetAllCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, "Keep", collections[0].Name)

	// no transfer happened, lastSyncTime stays untouched
	settings, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Zero(t, settings.LastSyncTime)
}

func TestManager_RoutesByNameAndSettings(t *testing.T) {
	ctx := context.Background()
	s := newSyncedStore(t, &models.Settings{Backend: "folder"})
	folder := &fakeBackend{name: "folder"}
	gist := &fakeBackend{name: "gist"}
	m := syncer.NewManager(s, zap.NewNop(), folder, gist)

	// explicit name wins
	require.NoError(t, m.Upload(ctx, "gist"))
	assert.Equal(t, 1, gist.pushed)
	assert.Zero(t, folder.pushed)

	// empty name falls back to the settings selection
	require.NoError(t, m.Upload(ctx, ""))
	assert.Equal(t, 1, folder.pushed)
}

func TestManager_UnknownBackend(t *testing.T) {
	ctx := context.Background()
	s := newSyncedStore(t, &models.Settings{})
	m := syncer.NewManager(s, zap.NewNop(), &fakeBackend{name: "folder"})

	err := m.Upload(ctx, "ftp")
	assert.True(t, errors.Is(err, errs.ErrValidation))
	err = m.Download(ctx, "")
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", syncer.StateIdle.String())
	assert.Equal(t, "authenticating", syncer.StateAuthenticating.String())
	assert.Equal(t, "transferring", syncer.StateTransferring.String())
	assert.Equal(t, "done", syncer.StateDone.String())
	assert.Equal(t, "failed", syncer.StateFailed.String())
}
