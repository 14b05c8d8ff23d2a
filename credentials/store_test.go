package credentials_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/autherrors"
	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/sessions"
	storagerepofake "github.com/jrsteele09/go-auth-session/storage/repofake"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testSession(n int) sessions.Session {
	return sessions.New(sessions.Credentials{
		AccessToken:      fmt.Sprintf("access-%d", n),
		AccessExpiresAt:  testNow.Add(30 * time.Minute),
		RefreshToken:     fmt.Sprintf("refresh-%d", n),
		RefreshExpiresAt: testNow.Add(24 * time.Hour),
		Identity:         sessions.Identity{UserID: "user-1", Email: "john.doe@example.com"},
		Permissions:      sessions.NewPermissions("user:read"),
	}, testNow)
}

func setupStore(t *testing.T) (*credentials.Store, *storagerepofake.FakeStorageRepo) {
	t.Helper()
	repo := storagerepofake.NewFakeStorageRepo()
	store, err := credentials.NewStore(repo, config.New())
	require.NoError(t, err)
	return store, repo
}

func TestNewStore_MissingDependencies(t *testing.T) {
	_, err := credentials.NewStore(nil, config.New())
	require.Error(t, err)

	_, err = credentials.NewStore(storagerepofake.NewFakeStorageRepo(), nil)
	require.Error(t, err)
}

// TestStore_ReflectsLatestOperation runs mixed set/clear sequences and checks
// Get only ever reports the most recent one.
func TestStore_ReflectsLatestOperation(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	_, ok := store.Get()
	require.False(t, ok)

	ops := []int{1, 2, 0, 3, 0, 0, 4, 5, 0}
	for _, op := range ops {
		if op == 0 {
			require.NoError(t, store.Clear(ctx))
			_, ok := store.Get()
			require.False(t, ok)
			_, ok = store.AccessToken()
			require.False(t, ok)
			continue
		}
		s := testSession(op)
		require.NoError(t, store.Set(ctx, s))
		got, ok := store.Get()
		require.True(t, ok)
		require.Equal(t, s.ID, got.ID)
		require.Equal(t, s.AccessToken, got.AccessToken)
		token, ok := store.AccessToken()
		require.True(t, ok)
		require.Equal(t, s.AccessToken, token)
	}
}

func TestStore_LoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, repo := setupStore(t)

	s := testSession(1).WithActivity(testNow.Add(time.Minute))
	require.NoError(t, store.Set(ctx, s))

	// A second store over the same repo simulates a restart
	reloaded, err := credentials.NewStore(repo, config.New())
	require.NoError(t, err)
	_, ok := reloaded.Get()
	require.False(t, ok)

	got, found, err := reloaded.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, s.ID, got.ID)
	require.Equal(t, s.AccessToken, got.AccessToken)
	require.Equal(t, s.RefreshToken, got.RefreshToken)
	require.True(t, s.AccessExpiresAt.Equal(got.AccessExpiresAt))
	require.True(t, s.RefreshExpiresAt.Equal(got.RefreshExpiresAt))
	require.True(t, s.StartedAt.Equal(got.StartedAt))
	require.True(t, s.LastActivityAt.Equal(got.LastActivityAt))
	require.Equal(t, s.Identity, got.Identity)
	require.True(t, s.Permissions.Equal(got.Permissions))

	// Loading alone never makes the session current
	_, ok = reloaded.Get()
	require.False(t, ok)
	_, ok = reloaded.AccessToken()
	require.False(t, ok)

	reloaded.Restore(got)
	current, ok := reloaded.Get()
	require.True(t, ok)
	require.Equal(t, s.ID, current.ID)
}

func TestStore_LoadNothingPersisted(t *testing.T) {
	store, _ := setupStore(t)
	_, found, err := store.Load(context.Background())
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_LoadIncomplete(t *testing.T) {
	ctx := context.Background()
	store, repo := setupStore(t)
	require.NoError(t, store.Set(ctx, testSession(1)))
	require.NoError(t, repo.Delete(ctx, config.New().GetProfileKey()))

	_, found, err := store.Load(ctx)
	require.ErrorIs(t, err, autherrors.ErrInvalidSession)
	require.False(t, found)
}

func TestStore_LoadMalformedExpiry(t *testing.T) {
	ctx := context.Background()
	store, repo := setupStore(t)
	require.NoError(t, store.Set(ctx, testSession(1)))
	require.NoError(t, repo.Set(ctx, config.New().GetAccessExpiresAtKey(), "tomorrow"))

	_, _, err := store.Load(ctx)
	require.ErrorIs(t, err, autherrors.ErrInvalidSession)
}

func TestStore_ClearRemovesPersistedKeys(t *testing.T) {
	ctx := context.Background()
	store, repo := setupStore(t)
	require.NoError(t, store.Set(ctx, testSession(1)))
	require.Equal(t, 5, repo.Len())

	require.NoError(t, store.Clear(ctx))
	require.Zero(t, repo.Len())
}

func TestStore_PersistFailureStillUpdatesMemory(t *testing.T) {
	ctx := context.Background()
	store, repo := setupStore(t)
	repo.FailWrites = errors.New("disk full")

	s := testSession(1)
	require.Error(t, store.Set(ctx, s))
	got, ok := store.Get()
	require.True(t, ok)
	require.Equal(t, s.ID, got.ID)

	require.Error(t, store.Clear(ctx))
	_, ok = store.Get()
	require.False(t, ok, "clear must never leave a stale session readable")
}

func TestStore_Token(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	_, err := store.Token()
	require.ErrorIs(t, err, autherrors.ErrNotAuthenticated)

	s := testSession(1)
	require.NoError(t, store.Set(ctx, s))
	tok, err := store.Token()
	require.NoError(t, err)
	require.Equal(t, "access-1", tok.AccessToken)
	require.Equal(t, "Bearer", tok.Type())
	require.True(t, s.AccessExpiresAt.Equal(tok.Expiry))
}
