package sessions

// Reason explains why a session ended.
type Reason string

const (
	ReasonUserInitiated   Reason = "user-initiated"   // Explicit logout
	ReasonIdleTimeout     Reason = "idle-timeout"     // No activity for the idle timeout
	ReasonAbsoluteTimeout Reason = "absolute-timeout" // Session lifetime exceeded regardless of activity
	ReasonRefreshFailed   Reason = "refresh-failed"   // Refresh credential rejected or expired
	ReasonServerRevoked   Reason = "server-revoked"   // Authority revoked the session
)

// IsExpiry reports whether the reason is a forced expiry rather than a logout.
func (r Reason) IsExpiry() bool {
	switch r {
	case ReasonIdleTimeout, ReasonAbsoluteTimeout, ReasonRefreshFailed:
		return true
	default:
		return false
	}
}

func (r Reason) String() string {
	return string(r)
}
