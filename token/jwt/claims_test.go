package jwt_test

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/token/jwt"
	"github.com/stretchr/testify/require"
)

func mint(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestParseUnverified(t *testing.T) {
	exp := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	t.Run("permission list claim", func(t *testing.T) {
		raw := mint(t, jwtlib.MapClaims{
			"sub":         "user-1",
			"email":       "ada@example.com",
			"name":        "Ada",
			"tenant":      "acme",
			"exp":         exp.Unix(),
			"permissions": []string{"reports.view", "reports.edit"},
			"scope":       "openid profile",
		})

		c, err := jwt.ParseUnverified(raw, "permissions")
		require.NoError(t, err)
		require.Equal(t, "user-1", c.Subject)
		require.Equal(t, "acme", c.Identity().TenantID)
		require.Equal(t, "ada@example.com", c.Identity().Email)
		require.True(t, exp.Equal(c.ExpiresAt))
		require.Equal(t, []string{"reports.edit", "reports.view"}, c.Permissions.List())
	})

	t.Run("falls back to scope", func(t *testing.T) {
		raw := mint(t, jwtlib.MapClaims{"sub": "user-1", "scope": "openid reports.view"})

		c, err := jwt.ParseUnverified(raw, "permissions")
		require.NoError(t, err)
		require.True(t, c.Permissions.Has("reports.view"))
		require.True(t, c.ExpiresAt.IsZero())
	})

	t.Run("no permissions", func(t *testing.T) {
		raw := mint(t, jwtlib.MapClaims{"sub": "user-1"})

		c, err := jwt.ParseUnverified(raw, "permissions")
		require.NoError(t, err)
		require.False(t, c.Permissions.Defined())
	})

	t.Run("signature is not checked", func(t *testing.T) {
		raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"sub": "user-2"}).SignedString([]byte("another-secret"))
		require.NoError(t, err)

		c, err := jwt.ParseUnverified(raw, "")
		require.NoError(t, err)
		require.Equal(t, "user-2", c.Subject)
	})

	t.Run("opaque token", func(t *testing.T) {
		_, err := jwt.ParseUnverified("not-a-jwt", "permissions")
		require.Error(t, err)

		_, err = jwt.ParseUnverified("  ", "permissions")
		require.Error(t, err)
	})
}
