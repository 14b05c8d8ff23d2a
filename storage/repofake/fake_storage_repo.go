package storagerepofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-session/autherrors"
	"github.com/jrsteele09/go-auth-session/storage"
)

var _ storage.Repo = (*FakeStorageRepo)(nil)

// FakeStorageRepo keeps values in memory. It doubles as the "memory" driver.
type FakeStorageRepo struct {
	values map[string]string
	lock   sync.RWMutex

	// FailWrites makes Set and Delete return the given error when non-nil
	FailWrites error
}

func NewFakeStorageRepo() *FakeStorageRepo {
	return &FakeStorageRepo{
		values: make(map[string]string),
	}
}

func (r *FakeStorageRepo) Get(_ context.Context, key string) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	v, ok := r.values[key]
	if !ok {
		return "", autherrors.ErrNotFound
	}
	return v, nil
}

func (r *FakeStorageRepo) Set(_ context.Context, key, value string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.FailWrites != nil {
		return r.FailWrites
	}
	r.values[key] = value
	return nil
}

func (r *FakeStorageRepo) Delete(_ context.Context, key string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.FailWrites != nil {
		return r.FailWrites
	}
	delete(r.values, key)
	return nil
}

// Len returns the number of stored keys.
func (r *FakeStorageRepo) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.values)
}
