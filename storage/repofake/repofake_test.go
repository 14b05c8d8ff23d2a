package storagerepofake_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-auth-session/autherrors"
	storagerepofake "github.com/jrsteele09/go-auth-session/storage/repofake"
	"github.com/stretchr/testify/require"
)

func TestRepo_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := storagerepofake.NewFakeStorageRepo()

	_, err := repo.Get(ctx, "access_token")
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

func TestRepo_FailWrites(t *testing.T) {
	ctx := context.Background()
	repo := storagerepofake.NewFakeStorageRepo()
	repo.FailWrites = autherrors.ErrNotFound

	require.Error(t, repo.Set(ctx, "k", "v"))
	require.Error(t, repo.Delete(ctx, "k"))
	require.Zero(t, repo.Len())
}
