package storage

import "context"

// Repo is the durable client-side key/value storage the credential store
// persists to, so a process restart can rehydrate the session.
type Repo interface {
	// Get returns the value stored under key or autherrors.ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set creates or replaces the value stored under key
	Set(ctx context.Context, key, value string) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}
