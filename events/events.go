package events

import (
	"time"

	"github.com/jrsteele09/go-auth-session/sessions"
)

// Event is a session state transition broadcast on the Bus. The concrete
// types below are the only implementations; consumers switch on them.
type Event interface {
	isAuthEvent()
	Name() string
}

// LoginSucceeded is published when a login produced a new session.
type LoginSucceeded struct {
	Session sessions.Session
}

// TokenRefreshed is published when a refresh replaced the session credentials.
type TokenRefreshed struct {
	Session sessions.Session
}

// SessionExpired is published when the session was torn down by a timeout or a failed refresh.
type SessionExpired struct {
	Reason sessions.Reason
}

// LoggedOut is published when the session ended by user action or server revocation.
type LoggedOut struct {
	Reason sessions.Reason
}

// IdleWarning is published once per idle period shortly before the idle timeout.
type IdleWarning struct {
	Remaining time.Duration
}

func (LoginSucceeded) isAuthEvent() {}
func (TokenRefreshed) isAuthEvent() {}
func (SessionExpired) isAuthEvent() {}
func (LoggedOut) isAuthEvent()      {}
func (IdleWarning) isAuthEvent()    {}

func (LoginSucceeded) Name() string { return "login_succeeded" }
func (TokenRefreshed) Name() string { return "token_refreshed" }
func (SessionExpired) Name() string { return "session_expired" }
func (LoggedOut) Name() string      { return "logged_out" }
func (IdleWarning) Name() string    { return "idle_warning" }

// Ended returns the reason for events that end a session.
func Ended(e Event) (sessions.Reason, bool) {
	switch ev := e.(type) {
	case SessionExpired:
		return ev.Reason, true
	case LoggedOut:
		return ev.Reason, true
	default:
		return "", false
	}
}
