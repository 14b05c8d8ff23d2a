package config

import "time"

type SessionConfig interface {
	GetTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshThreshold() time.Duration
	GetSessionTimeout() time.Duration
	GetIdleTimeout() time.Duration
	GetDebounceTime() time.Duration
	GetIdleWarning() time.Duration
	GetRefreshTimeout() time.Duration
	GetNetworkRetryDelay() time.Duration
}

type sessionFile struct {
	TokenExpiry        string `toml:"token_expiry"`
	RefreshTokenExpiry string `toml:"refresh_token_expiry"`
	RefreshThreshold   string `toml:"refresh_threshold"`
	SessionTimeout     string `toml:"session_timeout"`
	IdleTimeout        string `toml:"idle_timeout"`
	DebounceTime       string `toml:"debounce_time"`
	IdleWarning        string `toml:"idle_warning"`
	RefreshTimeout     string `toml:"refresh_timeout"`
	NetworkRetryDelay  string `toml:"network_retry_delay"`
}

type Session struct {
	file *sessionFile
}

// durationErrors reports every configured session duration that does not parse.
func (s Session) durationErrors() error {
	return parseDurations(
		[2]string{"TOKEN_EXPIRY", s.file.TokenExpiry},
		[2]string{"REFRESH_TOKEN_EXPIRY", s.file.RefreshTokenExpiry},
		[2]string{"REFRESH_THRESHOLD", s.file.RefreshThreshold},
		[2]string{"SESSION_TIMEOUT", s.file.SessionTimeout},
		[2]string{"IDLE_TIMEOUT", s.file.IdleTimeout},
		[2]string{"DEBOUNCE_TIME", s.file.DebounceTime},
		[2]string{"IDLE_WARNING", s.file.IdleWarning},
		[2]string{"REFRESH_TIMEOUT", s.file.RefreshTimeout},
		[2]string{"NETWORK_RETRY_DELAY", s.file.NetworkRetryDelay},
	)
}

var _ SessionConfig = Session{file: &sessionFile{}}

// GetTokenExpiry is the access token lifetime assumed when the provider omits one.
func (s Session) GetTokenExpiry() time.Duration {
	return durationValue("TOKEN_EXPIRY", s.file.TokenExpiry, 30*time.Minute)
}

// GetRefreshTokenExpiry is the refresh token lifetime assumed when the provider omits one.
func (s Session) GetRefreshTokenExpiry() time.Duration {
	return durationValue("REFRESH_TOKEN_EXPIRY", s.file.RefreshTokenExpiry, 7*24*time.Hour) // 7 days
}

func (s Session) GetRefreshThreshold() time.Duration {
	return durationValue("REFRESH_THRESHOLD", s.file.RefreshThreshold, 5*time.Minute)
}

func (s Session) GetSessionTimeout() time.Duration {
	return durationValue("SESSION_TIMEOUT", s.file.SessionTimeout, 8*time.Hour)
}

func (s Session) GetIdleTimeout() time.Duration {
	return durationValue("IDLE_TIMEOUT", s.file.IdleTimeout, 30*time.Minute)
}

func (s Session) GetDebounceTime() time.Duration {
	return durationValue("DEBOUNCE_TIME", s.file.DebounceTime, 300*time.Millisecond)
}

// GetIdleWarning is how long before the idle timeout a warning is published. Zero disables it.
func (s Session) GetIdleWarning() time.Duration {
	return durationValue("IDLE_WARNING", s.file.IdleWarning, 2*time.Minute)
}

func (s Session) GetRefreshTimeout() time.Duration {
	return durationValue("REFRESH_TIMEOUT", s.file.RefreshTimeout, 15*time.Second)
}

func (s Session) GetNetworkRetryDelay() time.Duration {
	return durationValue("NETWORK_RETRY_DELAY", s.file.NetworkRetryDelay, 30*time.Second)
}
