package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-auth-session/autherrors"
	"github.com/jrsteele09/go-auth-session/events"
	"github.com/jrsteele09/go-auth-session/sessions"
)

const (
	triggerProactive = "proactive"
	triggerReactive  = "reactive"
	triggerManual    = "manual"
)

// Refresh exchanges the refresh token for new credentials now. Concurrent
// refreshes share one provider call.
func (c *SessionController) Refresh(ctx context.Context) (sessions.Session, error) {
	return c.refresh(ctx, triggerManual, "")
}

// HandleUnauthorized is the reactive entry point for a resource call rejected
// with 401. failedAccessToken is the token that call sent; when a refresh has
// already replaced it the current session is returned without contacting the
// provider.
func (c *SessionController) HandleUnauthorized(ctx context.Context, failedAccessToken string) (sessions.Session, error) {
	return c.refresh(ctx, triggerReactive, failedAccessToken)
}

// proactive is the scheduler callback for the token it was armed for.
func (c *SessionController) proactive(epoch uint64, accessToken string) func() {
	return func() {
		c.mu.Lock()
		stale := c.epoch != epoch
		c.mu.Unlock()
		if stale {
			return
		}

		if _, err := c.refresh(context.Background(), triggerProactive, accessToken); err != nil && !errors.Is(err, autherrors.ErrSessionEnded) {
			c.logger.Warn().Err(err).Msg("proactive refresh failed")
		}
	}
}

// refresh joins or starts the single in-flight refresh for the current
// session. A non-empty replacedToken makes the call a no-op once the session
// no longer carries that access token.
func (c *SessionController) refresh(ctx context.Context, trigger, replacedToken string) (sessions.Session, error) {
	c.mu.Lock()
	if err := c.usableLocked("[SessionController.Refresh]"); err != nil {
		c.mu.Unlock()
		return sessions.Session{}, err
	}
	current, ok := c.store.Get()
	if !c.state.HasSession() || !ok {
		c.mu.Unlock()
		return sessions.Session{}, fmt.Errorf("[SessionController.Refresh] %w", autherrors.ErrNotAuthenticated)
	}
	if replacedToken != "" && current.AccessToken != replacedToken {
		c.mu.Unlock()
		return current, nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	return c.scheduler.Do(ctx, current.ID, func(flightCtx context.Context) (sessions.Session, error) {
		return c.runRefresh(flightCtx, epoch, current.AccessToken, trigger)
	})
}

// runRefresh performs one refresh call. It runs at most once at a time per
// session; seenToken is the access token the flight was started for.
func (c *SessionController) runRefresh(ctx context.Context, epoch uint64, seenToken, trigger string) (sessions.Session, error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return sessions.Session{}, fmt.Errorf("[SessionController.Refresh] %w", autherrors.ErrSessionEnded)
	}
	current, ok := c.store.Get()
	if !ok {
		c.mu.Unlock()
		return sessions.Session{}, fmt.Errorf("[SessionController.Refresh] %w", autherrors.ErrSessionEnded)
	}
	if current.AccessToken != seenToken {
		c.mu.Unlock()
		return current, nil
	}
	if current.RefreshExpired(c.clock.Now()) {
		c.teardownLocked(ctx, sessions.ReasonRefreshFailed)
		c.mu.Unlock()
		c.flush()
		return sessions.Session{}, fmt.Errorf("[SessionController.Refresh] refresh token expired: %w", autherrors.ErrRefreshFailed)
	}
	c.scheduler.Disarm()
	c.transitionLocked(StateRefreshing, trigger, current.ID)
	c.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.GetRefreshTimeout())
	creds, err := c.provider.Refresh(callCtx, current.RefreshToken)
	cancel()

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Debug().Str("session_id", current.ID).Msg("dropping refresh result for ended session")
		return sessions.Session{}, fmt.Errorf("[SessionController.Refresh] %w", autherrors.ErrSessionEnded)
	}

	if err != nil {
		if autherrors.IsTransient(err) {
			retryAt := c.clock.Now().Add(c.cfg.GetNetworkRetryDelay())
			c.transitionLocked(StateAuthenticated, "refresh deferred", current.ID)
			c.scheduler.ArmAt(retryAt, c.proactive(epoch, current.AccessToken))
			c.mu.Unlock()
			c.logger.Warn().Err(err).Str("session_id", current.ID).Time("retry_at", retryAt).Msg("refresh deferred, network unavailable")
			return sessions.Session{}, fmt.Errorf("[SessionController.Refresh] %w", err)
		}
		c.teardownLocked(ctx, sessions.ReasonRefreshFailed)
		c.mu.Unlock()
		c.flush()
		return sessions.Session{}, refreshFailed(err)
	}

	next, err := c.merge(current, creds)
	if err != nil {
		c.teardownLocked(ctx, sessions.ReasonRefreshFailed)
		c.mu.Unlock()
		c.flush()
		return sessions.Session{}, refreshFailed(err)
	}
	if err := c.store.Set(ctx, next); err != nil {
		c.logger.Warn().Err(err).Str("session_id", next.ID).Msg("refreshed session not persisted")
	}
	c.transitionLocked(StateAuthenticated, "refreshed", next.ID)
	c.scheduler.Arm(next.AccessExpiresAt, c.proactive(epoch, next.AccessToken))
	c.enqueueLocked(events.TokenRefreshed{Session: next})
	c.mu.Unlock()

	c.logger.Info().Str("session_id", next.ID).Str("trigger", trigger).Time("access_expires_at", next.AccessExpiresAt).Msg("session refreshed")
	c.flush()
	return next, nil
}

// merge applies refreshed credentials to the current session. Omitted fields
// keep their previous values; a different identity is rejected.
func (c *SessionController) merge(current sessions.Session, creds sessions.Credentials) (sessions.Session, error) {
	if creds.Identity.UserID != "" && creds.Identity.UserID != current.Identity.UserID {
		return sessions.Session{}, fmt.Errorf("refresh issued for user %q, session belongs to %q", creds.Identity.UserID, current.Identity.UserID)
	}
	if creds.AccessExpiresAt.IsZero() {
		creds.AccessExpiresAt = c.clock.Now().Add(c.cfg.GetTokenExpiry())
	}

	next := current.WithCredentials(creds)
	if next.AccessExpiresAt.After(next.RefreshExpiresAt) {
		next.AccessExpiresAt = next.RefreshExpiresAt
	}
	if err := next.Validate(); err != nil {
		return sessions.Session{}, err
	}
	return next, nil
}

func refreshFailed(err error) error {
	if errors.Is(err, autherrors.ErrRefreshFailed) {
		return fmt.Errorf("[SessionController.Refresh] %w", err)
	}
	return fmt.Errorf("[SessionController.Refresh] %w: %w", autherrors.ErrRefreshFailed, err)
}
