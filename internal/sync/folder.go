package sync

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"github.com/heppoko-wizard/web-collections/internal/errs"
	"github.com/heppoko-wizard/web-collections/internal/kv"
)

const (
	// FolderSyncFilename is the fixed artifact name inside the selected
	// directory.
	FolderSyncFilename = "collections.json"

	folderPathKey = "sync_folder_path"
)

// DirHandle is the Folder backend's credential: the re-validated path of
// the user-selected sync directory.
type DirHandle struct {
	Path string
}

// Folder syncs the plaintext snapshot with a file in a user-selected
// directory. The directory grant is persisted in local storage (not the
// collection store) and re-validated before each use. Writes go through
// a temp file plus atomic rename so a crash mid-write cannot corrupt the
// previous version.
type Folder struct {
	fs       billy.Filesystem
	kv       kv.Backend
	progress ProgressFunc
	log      *zap.Logger
}

// FolderOption configures a Folder backend.
type FolderOption func(*Folder)

// WithFolderFilesystem overrides the filesystem (memfs in tests).
func WithFolderFilesystem(fs billy.Filesystem) FolderOption {
	return func(f *Folder) { f.fs = fs }
}

// WithFolderProgress installs the progress side channel.
func WithFolderProgress(progress ProgressFunc) FolderOption {
	return func(f *Folder) { f.progress = progress }
}

// NewFolder constructs the Folder backend. backend persists the selected
// directory path across sessions.
func NewFolder(backend kv.Backend, log *zap.Logger, opts ...FolderOption) *Folder {
	f := &Folder{
		fs:       osfs.New("/"),
		kv:       backend,
		progress: func(string) {},
		log:      log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Backend.
func (f *Folder) Name() string { return "folder" }

// Encrypted implements Backend; the folder artifact is plaintext.
func (f *Folder) Encrypted() bool { return false }

// SelectDirectory validates and persists the sync directory grant.
func (f *Folder) SelectDirectory(ctx context.Context, path string) error {
	info, err := f.fs.Stat(path)
	if err != nil {
		return errs.NewBackend(f.Name(), "selectDirectory", fmt.Errorf("%w: %v", errs.ErrPermission, err))
	}
	if !info.IsDir() {
		return errs.NewBackend(f.Name(), "selectDirectory", fmt.Errorf("%w: %s is not a directory", errs.ErrValidation, path))
	}
	if err := f.kv.Put(ctx, folderPathKey, []byte(path)); err != nil {
		return errs.NewBackend(f.Name(), "selectDirectory", err)
	}
	return nil
}

// ClearDirectory forgets the persisted grant.
func (f *Folder) ClearDirectory(ctx context.Context) error {
	return f.kv.Delete(ctx, folderPathKey)
}

// Authenticate loads the persisted directory grant and re-validates it
// for read/write access before each use. No grant surfaces as
// ErrAuthentication, a vanished or non-writable directory as
// ErrPermission.
func (f *Folder) Authenticate(ctx context.Context) (Credential, error) {
	raw, ok, err := f.kv.Get(ctx, folderPathKey)
	if err != nil {
		return nil, errs.NewBackend(f.Name(), "authenticate", err)
	}
	if !ok || len(raw) == 0 {
		return nil, errs.NewBackend(f.Name(), "authenticate", fmt.Errorf("%w: no folder selected", errs.ErrAuthentication))
	}
	path := string(raw)
	info, err := f.fs.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, errs.NewBackend(f.Name(), "authenticate", fmt.Errorf("%w: sync folder unavailable: %v", errs.ErrPermission, err))
	}
	// Permission bits alone are not trustworthy; write a scratch file to
	// prove the grant still allows writing.
	scratch, err := f.fs.TempFile(path, ".grant-")
	if err != nil {
		return nil, errs.NewBackend(f.Name(), "authenticate", fmt.Errorf("%w: sync folder not writable: %v", errs.ErrPermission, err))
	}
	name := scratch.Name()
	_ = scratch.Close()
	_ = f.fs.Remove(name)
	return DirHandle{Path: path}, nil
}

// Push writes the payload to the sync file via a temp file and an atomic
// rename over the previous version.
func (f *Folder) Push(ctx context.Context, cred Credential, payload []byte) error {
	handle, err := f.handle(cred, "push")
	if err != nil {
		return err
	}
	f.progress("checking folder access")

	tmp, err := f.fs.TempFile(handle.Path, ".collections-")
	if err != nil {
		return f.fsError("push", err)
	}
	tmpName := tmp.Name()

	f.progress("writing file")
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = f.fs.Remove(tmpName)
		return f.fsError("push", err)
	}
	if err := tmp.Close(); err != nil {
		_ = f.fs.Remove(tmpName)
		return f.fsError("push", err)
	}
	if err := f.fs.Rename(tmpName, f.fs.Join(handle.Path, FolderSyncFilename)); err != nil {
		_ = f.fs.Remove(tmpName)
		return f.fsError("push", err)
	}

	f.progress("sync complete")
	f.log.Info("folder push complete", zap.String("dir", handle.Path))
	return nil
}

// Pull reads the sync file, or reports absence when it does not exist.
func (f *Folder) Pull(ctx context.Context, cred Credential) ([]byte, bool, error) {
	handle, err := f.handle(cred, "pull")
	if err != nil {
		return nil, false, err
	}
	f.progress("checking folder access")
	f.progress("reading file")

	file, err := f.fs.Open(f.fs.Join(handle.Path, FolderSyncFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, f.fsError("pull", err)
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		return nil, false, f.fsError("pull", err)
	}
	f.progress("sync complete")
	return payload, true, nil
}

func (f *Folder) handle(cred Credential, op string) (DirHandle, error) {
	handle, ok := cred.(DirHandle)
	if !ok || handle.Path == "" {
		return DirHandle{}, errs.NewBackend(f.Name(), op, fmt.Errorf("%w: invalid credential", errs.ErrAuthentication))
	}
	return handle, nil
}

func (f *Folder) fsError(op string, err error) error {
	if os.IsPermission(err) {
		return errs.NewBackend(f.Name(), op, fmt.Errorf("%w: %v", errs.ErrPermission, err))
	}
	return errs.NewBackend(f.Name(), op, err)
}
