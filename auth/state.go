package auth

// State is the Session Controller's lifecycle state.
type State int

const (
	StateUnauthenticated State = iota // Resting state; no session
	StateAuthenticating               // Login in progress
	StateAuthenticated                // Session established
	StateRefreshing                   // Refresh call in flight; the session stays usable
	StateTerminating                  // Teardown in progress
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// HasSession reports whether a session exists in this state.
func (s State) HasSession() bool {
	return s == StateAuthenticated || s == StateRefreshing
}
