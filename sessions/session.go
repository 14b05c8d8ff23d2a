package sessions

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/autherrors"
)

// Identity is the stable user identifier plus display attributes.
type Identity struct {
	UserID   string `json:"user_id"`             // Stable user identifier (token "sub")
	Email    string `json:"email,omitempty"`     // Display email
	Name     string `json:"name,omitempty"`      // Display name
	TenantID string `json:"tenant_id,omitempty"` // Tenant the identity authenticated against
}

// Credentials is what an identity provider hands back from a login or refresh.
// Zero values mean "not supplied"; the controller fills them from defaults or
// from the session being refreshed.
type Credentials struct {
	AccessToken      string      // Short-lived bearer token
	AccessExpiresAt  time.Time   // When the access token expires
	RefreshToken     string      // Longer-lived token used only to obtain a new access token
	RefreshExpiresAt time.Time   // When the refresh token expires
	Identity         Identity    // Who the tokens were issued to
	Permissions      Permissions // Permission set associated with the identity
}

// Session is the authenticated state of the user-agent. Values are never
// mutated in place once published; every change produces a new Session.
type Session struct {
	ID string // Unique per authenticated context, stable across refreshes
	Credentials
	StartedAt      time.Time // When the session began (absolute timeout origin)
	LastActivityAt time.Time // Last observed user interaction
}

// New builds a fresh session from login credentials.
func New(creds Credentials, now time.Time) Session {
	return Session{
		ID:             uuid.New().String(),
		Credentials:    creds,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// Validate checks the invariants every observable session must hold.
func (s Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("[Session.Validate] missing id: %w", autherrors.ErrInvalidSession)
	}
	if s.AccessToken == "" || s.RefreshToken == "" {
		return fmt.Errorf("[Session.Validate] missing token: %w", autherrors.ErrInvalidSession)
	}
	if s.Identity.UserID == "" {
		return fmt.Errorf("[Session.Validate] missing user id: %w", autherrors.ErrInvalidSession)
	}
	if s.AccessExpiresAt.After(s.RefreshExpiresAt) {
		return fmt.Errorf("[Session.Validate] access expiry after refresh expiry: %w", autherrors.ErrInvalidSession)
	}
	if s.LastActivityAt.Before(s.StartedAt) {
		return fmt.Errorf("[Session.Validate] activity before start: %w", autherrors.ErrInvalidSession)
	}
	return nil
}

// WithActivity returns a copy with LastActivityAt moved forward to at.
// Earlier instants are ignored so activity never moves backwards.
func (s Session) WithActivity(at time.Time) Session {
	if at.After(s.LastActivityAt) {
		s.LastActivityAt = at
	}
	return s
}

// WithCredentials returns a copy carrying refreshed credentials. Fields the
// provider left empty keep their previous values.
func (s Session) WithCredentials(creds Credentials) Session {
	next := s
	next.AccessToken = creds.AccessToken
	next.AccessExpiresAt = creds.AccessExpiresAt
	if creds.RefreshToken != "" {
		next.RefreshToken = creds.RefreshToken
	}
	if !creds.RefreshExpiresAt.IsZero() {
		next.RefreshExpiresAt = creds.RefreshExpiresAt
	}
	if creds.Identity.UserID != "" {
		next.Identity = creds.Identity
	}
	if creds.Permissions.Defined() {
		next.Permissions = creds.Permissions
	}
	return next
}

// AccessExpired reports whether the access token is no longer usable at now.
func (s Session) AccessExpired(now time.Time) bool {
	return !now.Before(s.AccessExpiresAt)
}

// RefreshExpired reports whether the refresh token is no longer usable at now.
func (s Session) RefreshExpired(now time.Time) bool {
	return !now.Before(s.RefreshExpiresAt)
}
