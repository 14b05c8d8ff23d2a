// Package gate answers "may the current session perform X" from the session's
// permission set. It never contacts the authority.
package gate

import (
	"fmt"

	"github.com/jrsteele09/go-auth-session/autherrors"
	"github.com/jrsteele09/go-auth-session/sessions"
)

// Authorize reports whether s holds the required permission. A nil session,
// an empty permission set or an empty requirement are all denied.
func Authorize(s *sessions.Session, required string) bool {
	if s == nil || required == "" {
		return false
	}
	return s.Permissions.Has(required)
}

// Guard runs action only when s holds the required permission.
func Guard(s *sessions.Session, required string, action func() error) error {
	if s == nil {
		return fmt.Errorf("[Guard] %q: %w", required, autherrors.ErrNotAuthenticated)
	}
	if !Authorize(s, required) {
		return fmt.Errorf("[Guard] %q: %w", required, autherrors.ErrForbidden)
	}
	return action()
}

// NavigationEntry is a menu item shown only to sessions holding RequiredPermission.
// An empty RequiredPermission means the entry is visible to any authenticated session.
type NavigationEntry struct {
	Label              string
	Route              string
	RequiredPermission string
}

// FilterNavigation returns the entries visible to s, in their original order.
func FilterNavigation(s *sessions.Session, entries []NavigationEntry) []NavigationEntry {
	visible := make([]NavigationEntry, 0, len(entries))
	if s == nil {
		return visible
	}
	for _, e := range entries {
		if e.RequiredPermission == "" || Authorize(s, e.RequiredPermission) {
			visible = append(visible, e)
		}
	}
	return visible
}
