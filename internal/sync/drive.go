package sync

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/heppoko-wizard/web-collections/internal/errs"
	"github.com/heppoko-wizard/web-collections/internal/kv"
)

const (
	// DriveSyncFilename is the fixed name of the sync artifact inside the
	// app-private appDataFolder.
	DriveSyncFilename = "web-collections-data.enc"

	driveTokenKey = "drive_token"

	defaultDriveAPIBase    = "https://www.googleapis.com"
	defaultDriveUploadBase = "https://www.googleapis.com/upload"
	defaultDriveRevokeURL  = "https://accounts.google.com/o/oauth2/revoke"
)

// Drive stores the encrypted snapshot as a single file in the Google
// Drive appDataFolder. The credential is an OAuth token obtained through
// interactive consent and cached in local storage.
type Drive struct {
	apiBase    string
	uploadBase string
	revokeURL  string
	client     *http.Client
	oauth      *oauth2.Config
	kv         kv.Backend
	log        *zap.Logger

	// consent runs the interactive authorization flow; replaced in tests.
	consent func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)
}

// DriveOption configures a Drive backend.
type DriveOption func(*Drive)

// WithDriveBaseURLs overrides the API and upload endpoints.
func WithDriveBaseURLs(apiBase, uploadBase string) DriveOption {
	return func(d *Drive) {
		d.apiBase = apiBase
		d.uploadBase = uploadBase
	}
}

// WithDriveHTTPClient overrides the HTTP client.
func WithDriveHTTPClient(client *http.Client) DriveOption {
	return func(d *Drive) { d.client = client }
}

// WithDriveConsent overrides the interactive consent flow.
func WithDriveConsent(consent func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)) DriveOption {
	return func(d *Drive) { d.consent = consent }
}

// NewDrive constructs the Drive backend. backend persists the cached
// OAuth token between sessions.
func NewDrive(backend kv.Backend, clientID, clientSecret string, log *zap.Logger, opts ...DriveOption) *Drive {
	d := &Drive{
		apiBase:    defaultDriveAPIBase,
		uploadBase: defaultDriveUploadBase,
		revokeURL:  defaultDriveRevokeURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		kv:         backend,
		log:        log,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"https://www.googleapis.com/auth/drive.appdata"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		},
	}
	d.consent = d.loopbackConsent
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements Backend.
func (d *Drive) Name() string { return "drive" }

// Encrypted implements Backend; the Drive artifact always carries an
// EncryptedPayload.
func (d *Drive) Encrypted() bool { return true }

// Authenticate returns a valid OAuth token, refreshing or re-running the
// consent flow as needed. The token is revalidated on every sync rather
// than trusted forever.
func (d *Drive) Authenticate(ctx context.Context) (Credential, error) {
	tok, err := d.cachedToken(ctx)
	if err != nil {
		return nil, err
	}
	if tok != nil && tok.Valid() {
		return tok, nil
	}
	if tok != nil && tok.RefreshToken != "" {
		refreshed, err := d.oauth.TokenSource(ctx, tok).Token()
		if err == nil {
			if err := d.cacheToken(ctx, refreshed); err != nil {
				return nil, err
			}
			return refreshed, nil
		}
		d.log.Warn("drive token refresh failed, re-running consent", zap.Error(err))
	}

	tok, err = d.consent(ctx, d.oauth)
	if err != nil {
		return nil, errs.NewBackend(d.Name(), "authenticate", fmt.Errorf("%w: %v", errs.ErrAuthentication, err))
	}
	if err := d.cacheToken(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Push uploads payload as the sync file, replacing the existing file by
// id or creating it inside appDataFolder. The upload is multipart: a
// JSON metadata part followed by the content part.
func (d *Drive) Push(ctx context.Context, cred Credential, payload []byte) error {
	tok, err := d.token(cred, "push")
	if err != nil {
		return err
	}
	fileID, err := d.findFileID(ctx, tok)
	if err != nil {
		return err
	}

	metadata := map[string]any{
		"name":     DriveSyncFilename,
		"mimeType": "application/json",
	}
	method := http.MethodPatch
	uploadURL := fmt.Sprintf("%s/drive/v3/files/%s?uploadType=multipart", d.uploadBase, url.PathEscape(fileID))
	if fileID == "" {
		metadata["parents"] = []string{"appDataFolder"}
		method = http.MethodPost
		uploadURL = d.uploadBase + "/drive/v3/files?uploadType=multipart"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return errs.NewBackend(d.Name(), "push", err)
	}
	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return errs.NewBackend(d.Name(), "push", err)
	}
	filePart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json"},
	})
	if err != nil {
		return errs.NewBackend(d.Name(), "push", err)
	}
	if _, err := filePart.Write(payload); err != nil {
		return errs.NewBackend(d.Name(), "push", err)
	}
	if err := mw.Close(); err != nil {
		return errs.NewBackend(d.Name(), "push", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, uploadURL, &body)
	if err != nil {
		return errs.NewBackend(d.Name(), "push", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

	resp, err := d.client.Do(req)
	if err != nil {
		return errs.NewBackend(d.Name(), "push", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return d.statusError("push", resp.StatusCode)
	}
	d.log.Info("drive push complete", zap.Bool("created", fileID == ""))
	return nil
}

// Pull downloads the sync file's content, or reports absence when no
// file exists yet.
func (d *Drive) Pull(ctx context.Context, cred Credential) ([]byte, bool, error) {
	tok, err := d.token(cred, "pull")
	if err != nil {
		return nil, false, err
	}
	fileID, err := d.findFileID(ctx, tok)
	if err != nil {
		return nil, false, err
	}
	if fileID == "" {
		return nil, false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/drive/v3/files/%s?alt=media", d.apiBase, url.PathEscape(fileID)), nil)
	if err != nil {
		return nil, false, errs.NewBackend(d.Name(), "pull", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, false, errs.NewBackend(d.Name(), "pull", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false, d.statusError("pull", resp.StatusCode)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, errs.NewBackend(d.Name(), "pull", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	return payload, true, nil
}

// Revoke invalidates the cached token (sign-out).
func (d *Drive) Revoke(ctx context.Context, cred Credential) error {
	tok, err := d.token(cred, "revoke")
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.revokeURL+"?token="+url.QueryEscape(tok.AccessToken), nil)
	if err != nil {
		return errs.NewBackend(d.Name(), "revoke", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return errs.NewBackend(d.Name(), "revoke", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	_ = resp.Body.Close()
	return d.kv.Delete(ctx, driveTokenKey)
}

func (d *Drive) token(cred Credential, op string) (*oauth2.Token, error) {
	tok, ok := cred.(*oauth2.Token)
	if !ok || tok.AccessToken == "" {
		return nil, errs.NewBackend(d.Name(), op, fmt.Errorf("%w: invalid credential", errs.ErrAuthentication))
	}
	return tok, nil
}

func (d *Drive) cachedToken(ctx context.Context) (*oauth2.Token, error) {
	raw, ok, err := d.kv.Get(ctx, driveTokenKey)
	if err != nil {
		return nil, errs.NewBackend(d.Name(), "authenticate", err)
	}
	if !ok {
		return nil, nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		// Unreadable cache behaves like no cache.
		return nil, nil
	}
	return &tok, nil
}

func (d *Drive) cacheToken(ctx context.Context, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return errs.NewBackend(d.Name(), "authenticate", err)
	}
	if err := d.kv.Put(ctx, driveTokenKey, raw); err != nil {
		return errs.NewBackend(d.Name(), "authenticate", err)
	}
	return nil
}

// findFileID scans the appDataFolder for the sync file and returns its
// id, or "" when absent.
func (d *Drive) findFileID(ctx context.Context, tok *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.apiBase+"/drive/v3/files?spaces=appDataFolder&fields=files(id,name)", nil)
	if err != nil {
		return "", errs.NewBackend(d.Name(), "list", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", errs.NewBackend(d.Name(), "list", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", d.statusError("list", resp.StatusCode)
	}

	var listing struct {
		Files []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return "", errs.NewBackend(d.Name(), "list", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	for _, f := range listing.Files {
		if f.Name == DriveSyncFilename {
			return f.ID, nil
		}
	}
	return "", nil
}

func (d *Drive) statusError(op string, status int) error {
	switch status {
	case http.StatusUnauthorized:
		return errs.NewBackend(d.Name(), op, fmt.Errorf("%w: status %d", errs.ErrAuthentication, status))
	case http.StatusForbidden:
		return errs.NewBackend(d.Name(), op, fmt.Errorf("%w: status %d", errs.ErrPermission, status))
	default:
		return errs.NewBackend(d.Name(), op, fmt.Errorf("%w: status %d", errs.ErrNetwork, status))
	}
}

// loopbackConsent runs the interactive authorization-code flow with a
// temporary loopback listener as the redirect target.
func (d *Drive) loopbackConsent(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("start loopback listener: %w", err)
	}
	defer ln.Close()

	local := *cfg
	local.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(stateBytes)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- fmt.Errorf("state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "consent denied", http.StatusBadRequest)
			errCh <- fmt.Errorf("consent denied: %s", r.URL.Query().Get("error"))
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		codeCh <- code
	})}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	d.log.Info("open this URL to authorize Drive sync",
		zap.String("url", local.AuthCodeURL(state, oauth2.AccessTypeOffline)))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		return nil, err
	case code := <-codeCh:
		return local.Exchange(ctx, code)
	}
}
