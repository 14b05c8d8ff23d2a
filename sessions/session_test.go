package sessions_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/autherrors"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testCredentials() sessions.Credentials {
	return sessions.Credentials{
		AccessToken:      "access-1",
		AccessExpiresAt:  testNow.Add(30 * time.Minute),
		RefreshToken:     "refresh-1",
		RefreshExpiresAt: testNow.Add(24 * time.Hour),
		Identity:         sessions.Identity{UserID: "user-1", Email: "john.doe@example.com", Name: "John Doe"},
		Permissions:      sessions.NewPermissions("user:read", "user:write"),
	}
}

func TestNew(t *testing.T) {
	s := sessions.New(testCredentials(), testNow)

	require.NotEmpty(t, s.ID)
	require.Equal(t, testNow, s.StartedAt)
	require.Equal(t, testNow, s.LastActivityAt)
	require.NoError(t, s.Validate())

	other := sessions.New(testCredentials(), testNow)
	require.NotEqual(t, s.ID, other.ID)
}

func TestValidate(t *testing.T) {
	t.Run("access expiry after refresh expiry", func(t *testing.T) {
		s := sessions.New(testCredentials(), testNow)
		s.AccessExpiresAt = s.RefreshExpiresAt.Add(time.Second)
		require.ErrorIs(t, s.Validate(), autherrors.ErrInvalidSession)
	})

	t.Run("activity before start", func(t *testing.T) {
		s := sessions.New(testCredentials(), testNow)
		s.LastActivityAt = testNow.Add(-time.Second)
		require.ErrorIs(t, s.Validate(), autherrors.ErrInvalidSession)
	})

	t.Run("missing user", func(t *testing.T) {
		creds := testCredentials()
		creds.Identity = sessions.Identity{}
		require.ErrorIs(t, sessions.New(creds, testNow).Validate(), autherrors.ErrInvalidSession)
	})

	t.Run("missing tokens", func(t *testing.T) {
		creds := testCredentials()
		creds.RefreshToken = ""
		require.ErrorIs(t, sessions.New(creds, testNow).Validate(), autherrors.ErrInvalidSession)
	})
}

func TestWithActivity(t *testing.T) {
	s := sessions.New(testCredentials(), testNow)

	later := s.WithActivity(testNow.Add(time.Minute))
	require.Equal(t, testNow.Add(time.Minute), later.LastActivityAt)
	require.Equal(t, testNow, s.LastActivityAt, "original value must not change")

	earlier := later.WithActivity(testNow)
	require.Equal(t, testNow.Add(time.Minute), earlier.LastActivityAt)
}

func TestWithCredentials(t *testing.T) {
	s := sessions.New(testCredentials(), testNow)

	t.Run("keeps omitted fields", func(t *testing.T) {
		next := s.WithCredentials(sessions.Credentials{
			AccessToken:     "access-2",
			AccessExpiresAt: testNow.Add(time.Hour),
		})
		require.Equal(t, s.ID, next.ID)
		require.Equal(t, "access-2", next.AccessToken)
		require.Equal(t, "refresh-1", next.RefreshToken)
		require.Equal(t, s.RefreshExpiresAt, next.RefreshExpiresAt)
		require.Equal(t, s.Identity, next.Identity)
		require.True(t, next.Permissions.Equal(s.Permissions))
		require.Equal(t, "access-1", s.AccessToken)
	})

	t.Run("replaces supplied fields", func(t *testing.T) {
		next := s.WithCredentials(sessions.Credentials{
			AccessToken:      "access-2",
			AccessExpiresAt:  testNow.Add(time.Hour),
			RefreshToken:     "refresh-2",
			RefreshExpiresAt: testNow.Add(48 * time.Hour),
			Permissions:      sessions.NewPermissions(),
		})
		require.Equal(t, "refresh-2", next.RefreshToken)
		require.Equal(t, testNow.Add(48*time.Hour), next.RefreshExpiresAt)
		require.Zero(t, next.Permissions.Len())
	})
}

func TestExpiry(t *testing.T) {
	s := sessions.New(testCredentials(), testNow)

	require.False(t, s.AccessExpired(testNow))
	require.True(t, s.AccessExpired(s.AccessExpiresAt))
	require.False(t, s.RefreshExpired(s.AccessExpiresAt))
	require.True(t, s.RefreshExpired(s.RefreshExpiresAt.Add(time.Nanosecond)))
}

func TestPermissions(t *testing.T) {
	p := sessions.NewPermissions("user:read", " user:read ", "", "admin:write")

	require.Equal(t, 2, p.Len())
	require.True(t, p.Has("user:read"))
	require.False(t, p.Has(""))
	require.Equal(t, []string{"admin:write", "user:read"}, p.List())
	require.Equal(t, "admin:write user:read", p.String())
	require.True(t, p.Defined())
	require.False(t, sessions.Permissions{}.Defined())

	data, err := json.Marshal(p)
	require.NoError(t, err)
	require.JSONEq(t, `["admin:write","user:read"]`, string(data))

	var decoded sessions.Permissions
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.True(t, decoded.Equal(p))
}

func TestReason(t *testing.T) {
	require.True(t, sessions.ReasonIdleTimeout.IsExpiry())
	require.True(t, sessions.ReasonAbsoluteTimeout.IsExpiry())
	require.True(t, sessions.ReasonRefreshFailed.IsExpiry())
	require.False(t, sessions.ReasonUserInitiated.IsExpiry())
	require.False(t, sessions.ReasonServerRevoked.IsExpiry())
}
