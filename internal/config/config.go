package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

type Config interface {
	EnvConfig
	SessionConfig
	StorageConfig
	ProviderConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetMetricsAddr() string
}

type mainConfig struct {
	EnvVars
	Session
	Storage
	Provider
}

// fileConfig mirrors the optional TOML file. Durations are Go duration strings ("30m").
type fileConfig struct {
	App      appFile      `toml:"app"`
	Session  sessionFile  `toml:"session"`
	Storage  storageFile  `toml:"storage"`
	Provider providerFile `toml:"provider"`
}

// New returns a Config resolved from environment variables and defaults.
func New() Config {
	return newMainConfig(&fileConfig{})
}

// Load reads the TOML file at path (if any) beneath environment overrides.
func Load(path string) (Config, error) {
	fc := &fileConfig{}
	if path != "" {
		if _, err := toml.DecodeFile(path, fc); err != nil {
			return nil, fmt.Errorf("[config.Load] decode %s: %w", path, err)
		}
	}
	c := newMainConfig(fc)
	if err := c.Session.durationErrors(); err != nil {
		return nil, fmt.Errorf("[config.Load] %w", err)
	}
	if err := Validate(c); err != nil {
		return nil, fmt.Errorf("[config.Load] %w", err)
	}
	return c, nil
}

func newMainConfig(fc *fileConfig) mainConfig {
	return mainConfig{
		EnvVars:  EnvVars{file: &fc.App},
		Session:  Session{file: &fc.Session},
		Storage:  Storage{file: &fc.Storage},
		Provider: Provider{file: &fc.Provider},
	}
}

// Validate checks that the session timings are coherent.
func Validate(c SessionConfig) error {
	switch {
	case c.GetTokenExpiry() <= 0:
		return fmt.Errorf("token expiry must be positive")
	case c.GetRefreshThreshold() < 0:
		return fmt.Errorf("refresh threshold must not be negative")
	case c.GetRefreshThreshold() >= c.GetTokenExpiry():
		return fmt.Errorf("refresh threshold %s must be shorter than token expiry %s", c.GetRefreshThreshold(), c.GetTokenExpiry())
	case c.GetRefreshTokenExpiry() < c.GetTokenExpiry():
		return fmt.Errorf("refresh token expiry must not be shorter than token expiry")
	case c.GetSessionTimeout() <= 0:
		return fmt.Errorf("session timeout must be positive")
	case c.GetIdleTimeout() <= 0:
		return fmt.Errorf("idle timeout must be positive")
	case c.GetDebounceTime() < 0:
		return fmt.Errorf("debounce time must not be negative")
	case c.GetIdleWarning() < 0 || (c.GetIdleWarning() > 0 && c.GetIdleWarning() >= c.GetIdleTimeout()):
		return fmt.Errorf("idle warning must be shorter than idle timeout")
	case c.GetRefreshTimeout() <= 0:
		return fmt.Errorf("refresh timeout must be positive")
	case c.GetNetworkRetryDelay() <= 0:
		return fmt.Errorf("network retry delay must be positive")
	}
	return nil
}

// durationValue resolves a duration, falling back to defaultValue when unset
// or malformed. Load rejects malformed values up front.
func durationValue(envVar, fileValue string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, fileValue)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("variable", envVar).Str("value", raw).Dur("default", defaultValue).Msg("invalid duration, using default")
		return defaultValue
	}
	return d
}

// parseDurations checks {envVar, fileValue} pairs the way durationValue resolves them.
func parseDurations(sources ...[2]string) error {
	var errs []error
	for _, src := range sources {
		envVar := src[0]
		raw := GetEnv(envVar, src[1])
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", envVar, raw, err))
		}
	}
	return errors.Join(errs...)
}
