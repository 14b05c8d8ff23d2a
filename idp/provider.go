// Package idp defines the identity-provider collaborator the session
// controller logs in and refreshes against.
package idp

import (
	"context"

	"github.com/jrsteele09/go-auth-session/sessions"
)

// Provider exchanges user credentials or a refresh token for session credentials.
//
// Login returns an error wrapping autherrors.ErrCredentialsRejected when the
// username or password is wrong. Refresh returns autherrors.ErrRefreshFailed
// when the refresh token is no longer accepted. Either returns
// autherrors.ErrNetworkUnavailable when the provider could not be reached.
// Zero-valued fields in the returned Credentials mean "not supplied".
type Provider interface {
	Login(ctx context.Context, username, password string) (sessions.Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (sessions.Credentials, error)
}
