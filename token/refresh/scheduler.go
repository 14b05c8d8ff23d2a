// Package refresh keeps the access token fresh: it arms the proactive refresh
// timer ahead of expiry and collapses concurrent refresh attempts into one
// provider call.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Func performs one refresh against the identity provider.
type Func func(ctx context.Context) (sessions.Session, error)

// Scheduler owns the single proactive refresh timer and the in-flight refresh.
type Scheduler struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	threshold time.Duration
	timer     clockwork.Timer
	fireAt    time.Time
	armed     bool
	gen       uint64 // bumped on every Arm/Disarm so a superseded timer does nothing
	group     singleflight.Group
	logger    zerolog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

func WithClock(clock clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func WithLogger(logger zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler creates a scheduler that fires threshold before access expiry.
func NewScheduler(threshold time.Duration, options ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		clock:     clockwork.NewRealClock(),
		threshold: threshold,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// FireTime is when a proactive refresh is due for a token expiring at
// accessExpiresAt: threshold before expiry, or now if that has passed.
func (s *Scheduler) FireTime(accessExpiresAt time.Time) time.Time {
	now := s.clock.Now()
	at := accessExpiresAt.Add(-s.threshold)
	if at.Before(now) {
		return now
	}
	return at
}

// Arm replaces any pending timer with one that calls due at FireTime(accessExpiresAt).
func (s *Scheduler) Arm(accessExpiresAt time.Time, due func()) time.Time {
	return s.ArmAt(s.FireTime(accessExpiresAt), due)
}

// ArmAt replaces any pending timer with one that calls due at at.
// An instant in the past fires immediately on another goroutine.
func (s *Scheduler) ArmAt(at time.Time, due func()) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen

	now := s.clock.Now()
	if at.Before(now) {
		at = now
	}
	s.fireAt = at
	s.armed = true

	fire := func() {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.armed = false
		s.timer = nil
		s.mu.Unlock()
		due()
	}

	// due takes other locks; never run it on the clock's goroutine
	d := at.Sub(now)
	if d <= 0 {
		go fire()
	} else {
		s.timer = s.clock.AfterFunc(d, func() { go fire() })
	}
	s.logger.Debug().Time("fire_at", at).Dur("in", d).Msg("proactive refresh armed")
	return at
}

// Disarm cancels the pending timer, if any.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.gen++
	s.armed = false
}

// FireAt returns when the pending timer fires.
func (s *Scheduler) FireAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fireAt, s.armed
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Do runs fn unless a refresh under key is already in flight, in which case
// it waits for that one. Every caller receives the same outcome. The flight
// itself is detached from ctx; cancelling ctx only stops this caller waiting.
func (s *Scheduler) Do(ctx context.Context, key string, fn Func) (sessions.Session, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return fn(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug().Str("key", key).Msg("joined in-flight refresh")
		}
		session, _ := res.Val.(sessions.Session)
		return session, res.Err
	case <-ctx.Done():
		return sessions.Session{}, ctx.Err()
	}
}
