package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/heppoko-wizard/web-collections/internal/errs"
	"github.com/heppoko-wizard/web-collections/internal/keyring"
	"github.com/heppoko-wizard/web-collections/internal/kv"
)

const (
	// GistSyncFilename is the single file inside the sync gist.
	GistSyncFilename = "collections.json"

	gistDescription = "Web Collections Sync Data"
	gistIDKey       = "gist_id"

	defaultGistAPIBase = "https://api.github.com"
)

// TokenSource supplies the stored GitHub personal access token.
type TokenSource interface {
	Token() (string, error)
}

// KeyringTokens reads the token from the OS keyring.
type KeyringTokens struct{}

// Token implements TokenSource.
func (KeyringTokens) Token() (string, error) {
	return keyring.GetToken()
}

// Gist stores the plaintext snapshot as a secret gist holding a single
// collections.json file. The gist is located by scanning the account's
// gist list; the found id is cached locally to avoid rescanning.
type Gist struct {
	apiBase  string
	client   *http.Client
	tokens   TokenSource
	kv       kv.Backend
	progress ProgressFunc
	log      *zap.Logger
}

// GistOption configures a Gist backend.
type GistOption func(*Gist)

// WithGistBaseURL overrides the GitHub API endpoint.
func WithGistBaseURL(base string) GistOption {
	return func(g *Gist) { g.apiBase = base }
}

// WithGistHTTPClient overrides the HTTP client.
func WithGistHTTPClient(client *http.Client) GistOption {
	return func(g *Gist) { g.client = client }
}

// WithGistProgress installs the progress side channel.
func WithGistProgress(progress ProgressFunc) GistOption {
	return func(g *Gist) { g.progress = progress }
}

// NewGist constructs the Gist backend. backend caches the located gist
// id; tokens defaults to the OS keyring when nil.
func NewGist(backend kv.Backend, tokens TokenSource, log *zap.Logger, opts ...GistOption) *Gist {
	if tokens == nil {
		tokens = KeyringTokens{}
	}
	g := &Gist{
		apiBase:  defaultGistAPIBase,
		client:   &http.Client{Timeout: 30 * time.Second},
		tokens:   tokens,
		kv:       backend,
		progress: func(string) {},
		log:      log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Backend.
func (g *Gist) Name() string { return "gist" }

// Encrypted implements Backend; gists carry the plaintext snapshot.
func (g *Gist) Encrypted() bool { return false }

// Authenticate loads the stored token and validates it against the
// "who am I" endpoint before first use.
func (g *Gist) Authenticate(ctx context.Context) (Credential, error) {
	token, err := g.tokens.Token()
	if err != nil || token == "" {
		return nil, errs.NewBackend(g.Name(), "authenticate", fmt.Errorf("%w: GitHub token not configured", errs.ErrAuthentication))
	}

	req, err := g.newRequest(ctx, http.MethodGet, "/user", token, nil)
	if err != nil {
		return nil, errs.NewBackend(g.Name(), "authenticate", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errs.NewBackend(g.Name(), "authenticate", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.NewBackend(g.Name(), "authenticate", fmt.Errorf("%w: token rejected with status %d", errs.ErrAuthentication, resp.StatusCode))
	}
	return token, nil
}

// Push creates or updates the sync gist's single file with the full
// payload. Pushing the same payload twice leaves the gist unchanged.
func (g *Gist) Push(ctx context.Context, cred Credential, payload []byte) error {
	token, err := g.credToken(cred, "push")
	if err != nil {
		return err
	}

	g.progress("checking gist")
	gistID, err := g.locateGist(ctx, token)
	if err != nil {
		return err
	}

	g.progress("uploading data")
	files := map[string]any{
		"files": map[string]any{
			GistSyncFilename: map[string]string{"content": string(payload)},
		},
	}

	if gistID == "" {
		files["description"] = gistDescription
		files["public"] = false
		created, err := g.doJSON(ctx, http.MethodPost, "/gists", token, files, http.StatusCreated, "push")
		if err != nil {
			return err
		}
		if err := g.kv.Put(ctx, gistIDKey, []byte(created.ID)); err != nil {
			return errs.NewBackend(g.Name(), "push", err)
		}
		g.log.Info("sync gist created", zap.String("gist_id", created.ID))
	} else {
		if _, err := g.doJSON(ctx, http.MethodPatch, "/gists/"+gistID, token, files, http.StatusOK, "push"); err != nil {
			return err
		}
	}
	g.progress("sync complete")
	return nil
}

// Pull fetches the sync gist and extracts the collections file content.
// No gist holding the file means the artifact is absent.
func (g *Gist) Pull(ctx context.Context, cred Credential) ([]byte, bool, error) {
	token, err := g.credToken(cred, "pull")
	if err != nil {
		return nil, false, err
	}

	g.progress("checking gist")
	gistID, err := g.locateGist(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if gistID == "" {
		return nil, false, nil
	}

	g.progress("fetching data")
	req, err := g.newRequest(ctx, http.MethodGet, "/gists/"+gistID, token, nil)
	if err != nil {
		return nil, false, errs.NewBackend(g.Name(), "pull", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, false, errs.NewBackend(g.Name(), "pull", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		// Cached id points at a deleted gist; behave like first pull.
		_ = g.kv.Delete(ctx, gistIDKey)
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, g.statusError("pull", resp.StatusCode)
	}

	var gist gistResponse
	if err := json.NewDecoder(resp.Body).Decode(&gist); err != nil {
		return nil, false, errs.NewBackend(g.Name(), "pull", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	file, ok := gist.Files[GistSyncFilename]
	if !ok {
		return nil, false, nil
	}
	g.progress("sync complete")
	return []byte(file.Content), true, nil
}

type gistResponse struct {
	ID    string `json:"id"`
	Files map[string]struct {
		Content string `json:"content"`
	} `json:"files"`
}

// locateGist returns the sync gist id from the local cache, or scans the
// account's gist list for one containing the sync file and caches it.
// Returns "" when no such gist exists.
func (g *Gist) locateGist(ctx context.Context, token string) (string, error) {
	if raw, ok, err := g.kv.Get(ctx, gistIDKey); err == nil && ok && len(raw) > 0 {
		return string(raw), nil
	}

	req, err := g.newRequest(ctx, http.MethodGet, "/gists", token, nil)
	if err != nil {
		return "", errs.NewBackend(g.Name(), "list", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", errs.NewBackend(g.Name(), "list", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", g.statusError("list", resp.StatusCode)
	}

	var gists []gistResponse
	if err := json.NewDecoder(resp.Body).Decode(&gists); err != nil {
		return "", errs.NewBackend(g.Name(), "list", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	for _, gist := range gists {
		if _, ok := gist.Files[GistSyncFilename]; ok {
			if err := g.kv.Put(ctx, gistIDKey, []byte(gist.ID)); err != nil {
				return "", errs.NewBackend(g.Name(), "list", err)
			}
			return gist.ID, nil
		}
	}
	return "", nil
}

func (g *Gist) doJSON(ctx context.Context, method, path, token string, body any, wantStatus int, op string) (*gistResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errs.NewBackend(g.Name(), op, err)
	}
	req, err := g.newRequest(ctx, method, path, token, bytes.NewReader(raw))
	if err != nil {
		return nil, errs.NewBackend(g.Name(), op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errs.NewBackend(g.Name(), op, fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		return nil, g.statusError(op, resp.StatusCode)
	}
	var out gistResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.NewBackend(g.Name(), op, fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	return &out, nil
}

func (g *Gist) newRequest(ctx context.Context, method, path, token string, body *bytes.Reader) (*http.Request, error) {
	var req *http.Request
	var err error
	if body == nil {
		req, err = http.NewRequestWithContext(ctx, method, g.apiBase+path, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, g.apiBase+path, body)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	return req, nil
}

func (g *Gist) credToken(cred Credential, op string) (string, error) {
	token, ok := cred.(string)
	if !ok || token == "" {
		return "", errs.NewBackend(g.Name(), op, fmt.Errorf("%w: invalid credential", errs.ErrAuthentication))
	}
	return token, nil
}

func (g *Gist) statusError(op string, status int) error {
	switch status {
	case http.StatusUnauthorized:
		return errs.NewBackend(g.Name(), op, fmt.Errorf("%w: status %d", errs.ErrAuthentication, status))
	case http.StatusForbidden:
		return errs.NewBackend(g.Name(), op, fmt.Errorf("%w: status %d", errs.ErrPermission, status))
	default:
		return errs.NewBackend(g.Name(), op, fmt.Errorf("%w: status %d", errs.ErrNetwork, status))
	}
}
