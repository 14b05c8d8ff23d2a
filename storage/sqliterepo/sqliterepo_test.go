package sqliterepo_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-auth-session/autherrors"
	"github.com/jrsteele09/go-auth-session/storage/sqliterepo"
	"github.com/stretchr/testify/require"
)

func TestRepo_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	repo, err := sqliterepo.Open(context.Background(), filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	_, err = repo.Get(ctx, "access_token")
	require.ErrorIs(t, err, autherrors.ErrNotFound)

	require.NoError(t, repo.Set(ctx, "access_token", "token-1"))
	v, err := repo.Get(ctx, "access_token")
	require.NoError(t, err)
	require.Equal(t, "token-1", v)

	require.NoError(t, repo.Set(ctx, "access_token", "token-2"))
	v, err = repo.Get(ctx, "access_token")
	require.NoError(t, err)
	require.Equal(t, "token-2", v)

	require.NoError(t, repo.Delete(ctx, "access_token"))
	_, err = repo.Get(ctx, "access_token")
	require.ErrorIs(t, err, autherrors.ErrNotFound)

	// Deleting a missing key is fine
	require.NoError(t, repo.Delete(ctx, "access_token"))
}

func TestRepo_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	first, err := sqliterepo.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "refresh_token", "refresh-1"))
	require.NoError(t, first.Close())

	second, err := sqliterepo.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	v, err := second.Get(ctx, "refresh_token")
	require.NoError(t, err)
	require.Equal(t, "refresh-1", v)
}
