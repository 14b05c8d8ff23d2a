// Package auth owns the session lifecycle: login, proactive and reactive
// refresh, activity timeouts and teardown. Collaborators read the current
// session and subscribe to transitions through a SessionController; nothing
// else mutates the session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-auth-session/activity"
	"github.com/jrsteele09/go-auth-session/autherrors"
	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/events"
	"github.com/jrsteele09/go-auth-session/gate"
	"github.com/jrsteele09/go-auth-session/idp"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/jrsteele09/go-auth-session/token/refresh"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionController drives the session state machine.
//
// All transitions happen under one mutex. Every teardown and every login
// attempt advances the epoch, and asynchronous work (provider calls, timer
// callbacks) carries the epoch it started under; a result arriving under a
// different epoch is dropped. Events are queued in transition order and
// delivered after the mutex is released, so handlers may call back into the
// controller.
type SessionController struct {
	provider  idp.Provider
	store     *credentials.Store
	bus       *events.Bus
	cfg       config.SessionConfig
	clock     clockwork.Clock
	logger    zerolog.Logger
	scheduler *refresh.Scheduler
	monitor   *activity.Monitor

	mu     sync.Mutex
	state  State
	epoch  uint64
	closed bool
	outbox []events.Event

	flushMu sync.Mutex // held by the goroutine draining outbox
}

// ControllerOption configures a SessionController.
type ControllerOption func(*SessionController)

// WithClock sets the clock driving every timer (primarily for testing).
func WithClock(clock clockwork.Clock) ControllerOption {
	return func(c *SessionController) {
		c.clock = clock
	}
}

func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *SessionController) {
		c.logger = logger
	}
}

// NewSessionController creates an unauthenticated controller. Call Start to
// rehydrate a persisted session.
func NewSessionController(provider idp.Provider, store *credentials.Store, bus *events.Bus, cfg config.SessionConfig, options ...ControllerOption) (*SessionController, error) {
	switch {
	case provider == nil:
		return nil, errors.New("[NewSessionController] identity provider is required")
	case store == nil:
		return nil, errors.New("[NewSessionController] credential store is required")
	case bus == nil:
		return nil, errors.New("[NewSessionController] event bus is required")
	case cfg == nil:
		return nil, errors.New("[NewSessionController] session config is required")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("[NewSessionController] %w", err)
	}

	c := &SessionController{
		provider: provider,
		store:    store,
		bus:      bus,
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		logger:   log.Logger,
		state:    StateUnauthenticated,
	}
	for _, opt := range options {
		opt(c)
	}

	c.scheduler = refresh.NewScheduler(cfg.GetRefreshThreshold(), refresh.WithClock(c.clock), refresh.WithLogger(c.logger))
	c.monitor = activity.NewMonitor(cfg, activity.WithClock(c.clock), activity.WithLogger(c.logger))
	return c, nil
}

// Start rehydrates a persisted session. A session whose refresh token,
// absolute timeout or idle timeout has lapsed is cleared instead. No event is
// published either way; read Current afterwards.
func (c *SessionController) Start(ctx context.Context) error {
	c.mu.Lock()
	if err := c.usableLocked("[SessionController.Start]"); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state != StateUnauthenticated {
		c.mu.Unlock()
		return fmt.Errorf("[SessionController.Start] state %s: %w", c.state, autherrors.ErrInvalidState)
	}
	c.mu.Unlock()

	session, ok, err := c.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, autherrors.ErrInvalidSession) {
			return fmt.Errorf("[SessionController.Start] %w", err)
		}
		c.logger.Warn().Err(err).Msg("discarding unreadable persisted session")
		return c.discard(ctx)
	}
	if !ok {
		return nil
	}

	now := c.clock.Now()
	if reason, lapsed := c.lapsed(session, now); lapsed {
		c.logger.Info().Str("session_id", session.ID).Str("reason", reason.String()).Msg("persisted session no longer usable")
		return c.discard(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUnauthenticated {
		return fmt.Errorf("[SessionController.Start] state %s: %w", c.state, autherrors.ErrInvalidState)
	}
	c.store.Restore(session)
	c.epoch++
	c.transitionLocked(StateAuthenticated, "rehydrated", session.ID)
	c.armLocked(session, c.epoch)
	return nil
}

// Login authenticates against the identity provider and establishes a new
// session. It fails with autherrors.ErrCredentialsRejected when the provider
// rejects the credentials and leaves no session behind.
func (c *SessionController) Login(ctx context.Context, username, password string) (sessions.Session, error) {
	c.mu.Lock()
	if err := c.usableLocked("[SessionController.Login]"); err != nil {
		c.mu.Unlock()
		return sessions.Session{}, err
	}
	if c.state != StateUnauthenticated {
		state := c.state
		c.mu.Unlock()
		return sessions.Session{}, fmt.Errorf("[SessionController.Login] state %s: %w", state, autherrors.ErrInvalidState)
	}
	c.epoch++
	epoch := c.epoch
	c.transitionLocked(StateAuthenticating, "login", "")
	c.mu.Unlock()

	creds, err := c.provider.Login(ctx, username, password)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Debug().Msg("dropping login result for abandoned attempt")
		return sessions.Session{}, fmt.Errorf("[SessionController.Login] %w", autherrors.ErrSessionEnded)
	}
	if err != nil {
		c.transitionLocked(StateUnauthenticated, "login failed", "")
		c.mu.Unlock()
		return sessions.Session{}, fmt.Errorf("[SessionController.Login] %w", err)
	}

	now := c.clock.Now()
	session := sessions.New(c.loginDefaults(creds, now), now)
	if err := session.Validate(); err != nil {
		c.transitionLocked(StateUnauthenticated, "login incomplete", "")
		c.mu.Unlock()
		return sessions.Session{}, fmt.Errorf("[SessionController.Login] provider returned unusable credentials: %w", err)
	}
	if err := c.store.Set(ctx, session); err != nil {
		c.logger.Warn().Err(err).Str("session_id", session.ID).Msg("session not persisted")
	}
	c.transitionLocked(StateAuthenticated, "login", session.ID)
	c.armLocked(session, epoch)
	c.enqueueLocked(events.LoginSucceeded{Session: session})
	c.mu.Unlock()

	c.flush()
	return session, nil
}

// Logout ends the session at the user's request and publishes
// LoggedOut{user-initiated}. An in-flight login is abandoned without an
// event. Logging out without a session is a no-op.
func (c *SessionController) Logout(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state.HasSession():
		c.teardownLocked(ctx, sessions.ReasonUserInitiated)
	case c.state == StateAuthenticating:
		c.epoch++
		c.transitionLocked(StateUnauthenticated, "login abandoned", "")
	}
	c.mu.Unlock()

	c.flush()
	return nil
}

// Revoke tears the session down because the authority revoked it and
// publishes LoggedOut{server-revoked}.
func (c *SessionController) Revoke(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.HasSession() {
		c.mu.Unlock()
		return fmt.Errorf("[SessionController.Revoke] %w", autherrors.ErrNotAuthenticated)
	}
	c.teardownLocked(ctx, sessions.ReasonServerRevoked)
	c.mu.Unlock()

	c.flush()
	return nil
}

// RecordActivity feeds a user-interaction signal to the idle monitor. It
// reports whether the signal was accepted (not debounced).
func (c *SessionController) RecordActivity(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.HasSession() {
		return false
	}
	at, ok := c.monitor.Touch()
	if !ok {
		return false
	}
	if current, ok := c.store.Get(); ok {
		if err := c.store.Set(ctx, current.WithActivity(at)); err != nil {
			c.logger.Warn().Err(err).Str("session_id", current.ID).Msg("activity not persisted")
		}
	}
	return true
}

// Current returns the current session.
func (c *SessionController) Current() (sessions.Session, bool) {
	return c.store.Get()
}

// State returns the current lifecycle state.
func (c *SessionController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AccessToken returns the current bearer token.
func (c *SessionController) AccessToken() (string, bool) {
	return c.store.AccessToken()
}

// Authorize reports whether the current session holds permission.
func (c *SessionController) Authorize(permission string) bool {
	session, ok := c.store.Get()
	if !ok {
		return gate.Authorize(nil, permission)
	}
	return gate.Authorize(&session, permission)
}

// Navigation filters entries down to those the current session may see.
func (c *SessionController) Navigation(entries []gate.NavigationEntry) []gate.NavigationEntry {
	session, ok := c.store.Get()
	if !ok {
		return gate.FilterNavigation(nil, entries)
	}
	return gate.FilterNavigation(&session, entries)
}

// Subscribe registers handler for every lifecycle event.
func (c *SessionController) Subscribe(handler events.Handler) events.Subscription {
	return c.bus.Subscribe(handler)
}

// Unsubscribe removes a handler registered with Subscribe.
func (c *SessionController) Unsubscribe(id events.Subscription) bool {
	return c.bus.Unsubscribe(id)
}

// NextRefreshAt returns when the next proactive refresh is due.
func (c *SessionController) NextRefreshAt() (time.Time, bool) {
	return c.scheduler.FireAt()
}

// Close stops every timer and makes further operations fail. The persisted
// session is kept so that the next process can rehydrate it.
func (c *SessionController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.epoch++
	c.scheduler.Disarm()
	c.monitor.Stop()
}

func (c *SessionController) usableLocked(op string) error {
	if c.closed {
		return fmt.Errorf("%s controller closed: %w", op, autherrors.ErrInvalidState)
	}
	return nil
}

// lapsed reports why a rehydrated session can no longer be used.
func (c *SessionController) lapsed(s sessions.Session, now time.Time) (sessions.Reason, bool) {
	switch {
	case s.RefreshExpired(now):
		return sessions.ReasonRefreshFailed, true
	case !now.Before(s.StartedAt.Add(c.cfg.GetSessionTimeout())):
		return sessions.ReasonAbsoluteTimeout, true
	case !now.Before(s.LastActivityAt.Add(c.cfg.GetIdleTimeout())):
		return sessions.ReasonIdleTimeout, true
	}
	return "", false
}

func (c *SessionController) discard(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("[SessionController.Start] %w", err)
	}
	return nil
}

// loginDefaults fills expiries the provider omitted and keeps access within refresh.
func (c *SessionController) loginDefaults(creds sessions.Credentials, now time.Time) sessions.Credentials {
	if creds.AccessExpiresAt.IsZero() {
		creds.AccessExpiresAt = now.Add(c.cfg.GetTokenExpiry())
	}
	if creds.RefreshExpiresAt.IsZero() {
		creds.RefreshExpiresAt = now.Add(c.cfg.GetRefreshTokenExpiry())
	}
	if creds.AccessExpiresAt.After(creds.RefreshExpiresAt) {
		creds.AccessExpiresAt = creds.RefreshExpiresAt
	}
	return creds
}

// armLocked starts the refresh timer and the activity monitor for session.
func (c *SessionController) armLocked(session sessions.Session, epoch uint64) {
	c.scheduler.Arm(session.AccessExpiresAt, c.proactive(epoch, session.AccessToken))
	c.monitor.Start(session.StartedAt, session.LastActivityAt, activity.Callbacks{
		OnTimeout: func(reason sessions.Reason) {
			c.expire(epoch, reason)
		},
		OnWarning: func(remaining time.Duration) {
			c.warn(epoch, remaining)
		},
	})
}

// teardownLocked runs Terminating -> Unauthenticated and queues the ending event.
func (c *SessionController) teardownLocked(ctx context.Context, reason sessions.Reason) {
	sessionID := ""
	if current, ok := c.store.Get(); ok {
		sessionID = current.ID
	}

	c.transitionLocked(StateTerminating, reason.String(), sessionID)
	c.epoch++
	c.scheduler.Disarm()
	c.monitor.Stop()
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("persisted session not cleared")
	}
	c.transitionLocked(StateUnauthenticated, reason.String(), sessionID)

	if reason.IsExpiry() {
		c.enqueueLocked(events.SessionExpired{Reason: reason})
	} else {
		c.enqueueLocked(events.LoggedOut{Reason: reason})
	}
}

func (c *SessionController) expire(epoch uint64, reason sessions.Reason) {
	c.mu.Lock()
	if c.epoch != epoch || !c.state.HasSession() {
		c.mu.Unlock()
		return
	}
	c.teardownLocked(context.Background(), reason)
	c.mu.Unlock()

	c.flush()
}

func (c *SessionController) warn(epoch uint64, remaining time.Duration) {
	c.mu.Lock()
	if c.epoch != epoch || !c.state.HasSession() {
		c.mu.Unlock()
		return
	}
	c.enqueueLocked(events.IdleWarning{Remaining: remaining})
	c.mu.Unlock()

	c.flush()
}

func (c *SessionController) transitionLocked(to State, reason, sessionID string) {
	from := c.state
	c.state = to
	c.logger.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("reason", reason).
		Str("session_id", sessionID).
		Msg("session state transition")
}

func (c *SessionController) enqueueLocked(e events.Event) {
	c.outbox = append(c.outbox, e)
}

// flush publishes queued events in order. Only one goroutine drains at a
// time; a caller finding the drain busy leaves its events to that goroutine.
func (c *SessionController) flush() {
	if !c.flushMu.TryLock() {
		return
	}
	for {
		c.mu.Lock()
		if len(c.outbox) == 0 {
			c.flushMu.Unlock()
			c.mu.Unlock()
			return
		}
		e := c.outbox[0]
		c.outbox = c.outbox[1:]
		c.mu.Unlock()

		c.bus.Publish(e)
	}
}
