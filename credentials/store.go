// Package credentials holds the single authoritative copy of the current
// session and mirrors it to durable client storage so a restart can rehydrate.
// Expiry is not validated here; callers decide whether a session is usable.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/autherrors"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// profile is the non-token part of a session persisted under the profile key.
type profile struct {
	ID             string               `json:"id"`
	Identity       sessions.Identity    `json:"identity"`
	Permissions    sessions.Permissions `json:"permissions"`
	StartedAt      time.Time            `json:"started_at"`
	LastActivityAt time.Time            `json:"last_activity_at"`
}

// Store keeps the current session in memory and in the durable repo.
type Store struct {
	mu      sync.RWMutex
	current *sessions.Session
	repo    storage.Repo
	keys    config.StorageConfig
	logger  zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for persistence failures.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store persisting through repo under the configured key names.
func NewStore(repo storage.Repo, keys config.StorageConfig, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[NewStore] storage repo is required")
	}
	if keys == nil {
		return nil, errors.New("[NewStore] storage key config is required")
	}
	s := &Store{
		repo:   repo,
		keys:   keys,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Get returns the current session, or false when there is none.
func (s *Store) Get() (sessions.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return sessions.Session{}, false
	}
	return *s.current, true
}

// AccessToken returns the current access credential, or false when there is none.
func (s *Store) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return "", false
	}
	return s.current.AccessToken, true
}

// Set replaces the current session and persists it. The in-memory value is
// replaced even when persistence fails; the error is returned so the caller
// can report it.
func (s *Store) Set(ctx context.Context, session sessions.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := session
	s.current = &value
	if err := s.persist(ctx, value); err != nil {
		return fmt.Errorf("[Store.Set] %w", err)
	}
	return nil
}

// Clear removes the current session from memory and durable storage.
// Get returns false afterwards even if the storage delete fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	var errs []error
	for _, key := range s.allKeys() {
		if err := s.repo.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("[Store.Clear] %w", err)
	}
	return nil
}

// Load reads the persisted session without making it current. It returns
// false when nothing is persisted, and autherrors.ErrInvalidSession when what
// is persisted is incomplete or malformed. Expiry is left to the caller, which
// installs a usable session with Restore.
func (s *Store) Load(ctx context.Context) (sessions.Session, bool, error) {
	session, found, err := s.read(ctx)
	if err != nil || !found {
		return sessions.Session{}, found, err
	}
	s.logger.Debug().Str("session_id", session.ID).Time("access_expires_at", session.AccessExpiresAt).Msg("session read from storage")
	return session, true, nil
}

// Restore makes a session read by Load current without writing it back.
func (s *Store) Restore(session sessions.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value := session
	s.current = &value
}

// Token implements oauth2.TokenSource over the current session so collaborators
// can use oauth2.NewClient. It never refreshes; that is the controller's job.
func (s *Store) Token() (*oauth2.Token, error) {
	session, ok := s.Get()
	if !ok {
		return nil, autherrors.ErrNotAuthenticated
	}
	return &oauth2.Token{
		AccessToken:  session.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: session.RefreshToken,
		Expiry:       session.AccessExpiresAt,
	}, nil
}

var _ oauth2.TokenSource = (*Store)(nil)

func (s *Store) allKeys() []string {
	return []string{
		s.keys.GetAccessTokenKey(),
		s.keys.GetAccessExpiresAtKey(),
		s.keys.GetRefreshTokenKey(),
		s.keys.GetRefreshExpiresAtKey(),
		s.keys.GetProfileKey(),
	}
}

func (s *Store) persist(ctx context.Context, session sessions.Session) error {
	p, err := json.Marshal(profile{
		ID:             session.ID,
		Identity:       session.Identity,
		Permissions:    session.Permissions,
		StartedAt:      session.StartedAt,
		LastActivityAt: session.LastActivityAt,
	})
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	values := []struct{ key, value string }{
		{s.keys.GetProfileKey(), string(p)},
		{s.keys.GetAccessTokenKey(), session.AccessToken},
		{s.keys.GetAccessExpiresAtKey(), session.AccessExpiresAt.UTC().Format(time.RFC3339Nano)},
		{s.keys.GetRefreshTokenKey(), session.RefreshToken},
		{s.keys.GetRefreshExpiresAtKey(), session.RefreshExpiresAt.UTC().Format(time.RFC3339Nano)},
	}
	for _, kv := range values {
		if err := s.repo.Set(ctx, kv.key, kv.value); err != nil {
			return fmt.Errorf("persist %s: %w", kv.key, err)
		}
	}
	return nil
}

func (s *Store) read(ctx context.Context) (sessions.Session, bool, error) {
	accessToken, err := s.repo.Get(ctx, s.keys.GetAccessTokenKey())
	if errors.Is(err, autherrors.ErrNotFound) {
		return sessions.Session{}, false, nil
	}
	if err != nil {
		return sessions.Session{}, false, fmt.Errorf("[Store.Load] %w", err)
	}

	get := func(key string) (string, error) {
		v, err := s.repo.Get(ctx, key)
		if errors.Is(err, autherrors.ErrNotFound) {
			return "", fmt.Errorf("[Store.Load] missing %s: %w", key, autherrors.ErrInvalidSession)
		}
		if err != nil {
			return "", fmt.Errorf("[Store.Load] %w", err)
		}
		return v, nil
	}
	getTime := func(key string) (time.Time, error) {
		v, err := get(key)
		if err != nil {
			return time.Time{}, err
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("[Store.Load] parse %s: %w", key, autherrors.ErrInvalidSession)
		}
		return t, nil
	}

	refreshToken, err := get(s.keys.GetRefreshTokenKey())
	if err != nil {
		return sessions.Session{}, false, err
	}
	accessExpiresAt, err := getTime(s.keys.GetAccessExpiresAtKey())
	if err != nil {
		return sessions.Session{}, false, err
	}
	refreshExpiresAt, err := getTime(s.keys.GetRefreshExpiresAtKey())
	if err != nil {
		return sessions.Session{}, false, err
	}
	rawProfile, err := get(s.keys.GetProfileKey())
	if err != nil {
		return sessions.Session{}, false, err
	}
	var p profile
	if err := json.Unmarshal([]byte(rawProfile), &p); err != nil {
		return sessions.Session{}, false, fmt.Errorf("[Store.Load] decode profile: %w", autherrors.ErrInvalidSession)
	}

	session := sessions.Session{
		ID: p.ID,
		Credentials: sessions.Credentials{
			AccessToken:      accessToken,
			AccessExpiresAt:  accessExpiresAt,
			RefreshToken:     refreshToken,
			RefreshExpiresAt: refreshExpiresAt,
			Identity:         p.Identity,
			Permissions:      p.Permissions,
		},
		StartedAt:      p.StartedAt,
		LastActivityAt: p.LastActivityAt,
	}
	if err := session.Validate(); err != nil {
		return sessions.Session{}, false, fmt.Errorf("[Store.Load] %w", err)
	}
	return session, true, nil
}
