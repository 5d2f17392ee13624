package sync_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heppoko-wizard/web-collections/internal/errs"
	"github.com/heppoko-wizard/web-collections/internal/kv"
	syncer "github.com/heppoko-wizard/web-collections/internal/sync"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token() (string, error) { return s.token, s.err }

// fakeGistAPI is a minimal in-memory GitHub gist endpoint.
type fakeGistAPI struct {
	gists    map[string]map[string]string // gist id -> filename -> content
	nextID   int
	userCode int
}

func newFakeGistAPI() *fakeGistAPI {
	return &fakeGistAPI{gists: map[string]map[string]string{}, nextID: 1, userCode: http.StatusOK}
}

func (f *fakeGistAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(f.userCode)
	})
	mux.HandleFunc("GET /gists", func(w http.ResponseWriter, r *http.Request) {
		var out []map[string]any
		for id, files := range f.gists {
			out = append(out, map[string]any{"id": id, "files": fileMap(files)})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("POST /gists", func(w http.ResponseWriter, r *http.Request) {
		id := fmt.Sprintf("gist%d", f.nextID)
		f.nextID++
		f.gists[id] = decodeFiles(r)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
	})
	mux.HandleFunc("PATCH /gists/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := f.gists[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		for name, content := range decodeFiles(r) {
			f.gists[id][name] = content
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
	})
	mux.HandleFunc("GET /gists/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		files, ok := f.gists[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "files": fileMap(files)})
	})
	return mux
}

func fileMap(files map[string]string) map[string]any {
	out := map[string]any{}
	for name, content := range files {
		out[name] = map[string]string{"content": content}
	}
	return out
}

func decodeFiles(r *http.Request) map[string]string {
	var body struct {
		Files map[string]struct {
			Content string `json:"content"`
		} `json:"files"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	out := map[string]string{}
	for name, file := range body.Files {
		out[name] = file.Content
	}
	return out
}

func newTestGist(t *testing.T, api *fakeGistAPI, backend kv.Backend) *syncer.Gist {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return syncer.NewGist(backend, staticTokens{token: "tok"}, zap.NewNop(),
		syncer.WithGistBaseURL(srv.URL))
}

func TestGist_Authenticate(t *testing.T) {
	ctx := context.Background()
	g := newTestGist(t, newFakeGistAPI(), kv.NewMemory())

	cred, err := g.Authenticate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", cred)
}

func TestGist_AuthenticateRejectedToken(t *testing.T) {
	ctx := context.Background()
	api := newFakeGistAPI()
	api.userCode = http.StatusUnauthorized
	g := newTestGist(t, api, kv.NewMemory())

	_, err := g.Authenticate(ctx)
	assert.True(t, errors.Is(err, errs.ErrAuthentication))
}

func TestGist_AuthenticateMissingToken(t *testing.T) {
	g := syncer.NewGist(kv.NewMemory(), staticTokens{}, zap.NewNop())

	_, err := g.Authenticate(context.Background())
	assert.True(t, errors.Is(err, errs.ErrAuthentication))
}

func TestGist_PushCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	api := newFakeGistAPI()
	backend := kv.NewMemory()
	g := newTestGist(t, api, backend)

	require.NoError(t, g.Push(ctx, "tok", []byte(`{"collections":[]}`)))
	require.Len(t, api.gists, 1)

	// gist id is cached for the next operation
	cached, ok, err := backend.Get(ctx, "gist_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, cached)

	// second push mutates the existing gist instead of creating another
	require.NoError(t, g.Push(ctx, "tok", []byte(`{"collections":[1]}`)))
	require.Len(t, api.gists, 1)
	assert.Equal(t, `{"collections":[1]}`, api.gists[string(cached)][syncer.GistSyncFilename])
}

func TestGist_PushFindsExistingGistByScan(t *testing.T) {
	ctx := context.Background()
	api := newFakeGistAPI()
	api.gists["existing"] = map[string]string{syncer.GistSyncFilename: "old"}
	backend := kv.NewMemory()
	g := newTestGist(t, api, backend)

	require.NoError(t, g.Push(ctx, "tok", []byte("new")))
	require.Len(t, api.gists, 1)
	assert.Equal(t, "new", api.gists["existing"][syncer.GistSyncFilename])

	cached, ok, err := backend.Get(ctx, "gist_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "existing", string(cached))
}

func TestGist_PullRoundTrip(t *testing.T) {
	ctx := context.Background()
	api := newFakeGistAPI()
	g := newTestGist(t, api, kv.NewMemory())

	require.NoError(t, g.Push(ctx, "tok", []byte("payload")))

	got, ok, err := g.Pull(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestGist_PullAbsent(t *testing.T) {
	ctx := context.Background()
	g := newTestGist(t, newFakeGistAPI(), kv.NewMemory())

	got, ok, err := g.Pull(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestGist_PullStaleCachedID(t *testing.T) {
	ctx := context.Background()
	api := newFakeGistAPI()
	backend := kv.NewMemory()
	require.NoError(t, backend.Put(ctx, "gist_id", []byte("deleted")))
	g := newTestGist(t, api, backend)

	got, ok, err := g.Pull(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	// stale cache entry is cleared
	_, present, err := backend.Get(ctx, "gist_id")
	require.NoError(t, err)
	assert.False(t, present)
}
