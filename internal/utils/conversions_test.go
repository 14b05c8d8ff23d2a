package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestClaimStrings(t *testing.T) {
	values, ok := utils.ClaimStrings([]any{"a", 4, "", "b"})
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, values)

	values, ok = utils.ClaimStrings("read  write")
	require.True(t, ok)
	require.Equal(t, []string{"read", "write"}, values)

	values, ok = utils.ClaimStrings([]string{"x"})
	require.True(t, ok)
	require.Equal(t, []string{"x"}, values)

	_, ok = utils.ClaimStrings(12.0)
	require.False(t, ok)

	_, ok = utils.ClaimStrings(nil)
	require.False(t, ok)
}
