// Package sync implements the synchronization engine: the shared
// push/pull backend contract, its four implementations and the
// orchestrator that drives them from the collection store.
package sync

import "context"

// Credential is the opaque per-backend credential returned by
// Authenticate and handed back to Push and Pull. Each backend documents
// its concrete type and rejects anything else.
type Credential interface{}

// ProgressFunc receives discrete human-readable stage labels during a
// push or pull. It is a UI side channel only and never influences the
// result.
type ProgressFunc func(stage string)

// Backend is a remote storage target capable of overwrite-push and
// best-effort pull of one serialized snapshot. Push is an idempotent
// full overwrite of the single well-known remote artifact; Pull returns
// ok=false when no artifact exists yet, which is not an error.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Encrypted reports whether the orchestrator must wrap the snapshot
	// in an EncryptedPayload before Push and unwrap it after Pull.
	Encrypted() bool
	// Authenticate acquires the backend's credential. Denial or
	// cancellation surfaces as errs.ErrAuthentication.
	Authenticate(ctx context.Context) (Credential, error)
	// Push replaces the remote artifact with payload, creating it when
	// absent.
	Push(ctx context.Context, cred Credential, payload []byte) error
	// Pull returns the remote artifact's content, or ok=false when the
	// artifact does not exist.
	Pull(ctx context.Context, cred Credential) (payload []byte, ok bool, err error)
}
