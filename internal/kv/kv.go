// Package kv provides the persistence backend abstraction the collection
// store is built on: whole-value get/set by key, atomic per call.
package kv

import "context"

// Backend is a minimal key-value store. Implementations must make each
// Get/Put/Delete atomic on its own; there is no cross-call atomicity.
type Backend interface {
	// Get returns the value stored under key. The second return value is
	// false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the underlying resources.
	Close() error
}
