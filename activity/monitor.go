// Package activity enforces the idle and absolute session timeouts from
// debounced user-activity signals.
package activity

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Callbacks are invoked from timer goroutines without the monitor's lock held.
type Callbacks struct {
	OnTimeout func(reason sessions.Reason)
	OnWarning func(remaining time.Duration)
}

// Monitor owns the idle, idle-warning and absolute timers for one session at a time.
type Monitor struct {
	mu             sync.Mutex
	clock          clockwork.Clock
	idleTimeout    time.Duration
	sessionTimeout time.Duration
	warning        time.Duration
	debounce       time.Duration
	limiter        *rate.Limiter
	logger         zerolog.Logger

	running      bool
	gen          uint64 // bumped on Start/Stop
	idleGen      uint64 // bumped whenever the idle deadline moves
	startedAt    time.Time
	lastActivity time.Time
	idleTimer    clockwork.Timer
	warnTimer    clockwork.Timer
	absTimer     clockwork.Timer
	callbacks    Callbacks
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

func WithClock(clock clockwork.Clock) MonitorOption {
	return func(m *Monitor) {
		m.clock = clock
	}
}

func WithLogger(logger zerolog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// NewMonitor creates a stopped monitor using the idle, absolute, warning and debounce settings from cfg.
func NewMonitor(cfg config.SessionConfig, options ...MonitorOption) *Monitor {
	m := &Monitor{
		clock:          clockwork.NewRealClock(),
		idleTimeout:    cfg.GetIdleTimeout(),
		sessionTimeout: cfg.GetSessionTimeout(),
		warning:        cfg.GetIdleWarning(),
		debounce:       cfg.GetDebounceTime(),
		logger:         log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Start begins monitoring a session that started at startedAt and was last
// active at lastActivity. Any previous monitoring is replaced.
func (m *Monitor) Start(startedAt, lastActivity time.Time, callbacks Callbacks) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopTimersLocked()
	m.gen++
	m.running = true
	m.startedAt = startedAt
	m.lastActivity = lastActivity
	m.callbacks = callbacks
	m.limiter = rate.NewLimiter(rate.Every(m.debounce), 1)

	gen := m.gen
	m.absTimer = m.afterLocked(startedAt.Add(m.sessionTimeout), func() {
		m.expire(gen, 0, false, sessions.ReasonAbsoluteTimeout)
	})
	m.armIdleLocked()
}

// Touch records a user-activity signal. Signals arriving within the debounce
// window of the last accepted one are dropped. It returns the accepted
// activity time and true, or false when the signal was dropped or the
// monitor is stopped.
func (m *Monitor) Touch() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return time.Time{}, false
	}
	now := m.clock.Now()
	if !m.limiter.AllowN(now, 1) {
		return m.lastActivity, false
	}
	m.lastActivity = now
	m.armIdleLocked()
	return now, true
}

// Stop cancels every timer. Callbacks from timers already firing are suppressed.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopTimersLocked()
	m.gen++
	m.running = false
}

// LastActivity returns the last accepted activity time.
func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Deadlines returns the current idle and absolute deadlines.
func (m *Monitor) Deadlines() (idle, absolute time.Time, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity.Add(m.idleTimeout), m.startedAt.Add(m.sessionTimeout), m.running
}

func (m *Monitor) armIdleLocked() {
	stopTimer(m.idleTimer)
	stopTimer(m.warnTimer)
	m.warnTimer = nil
	m.idleGen++

	gen, idleGen := m.gen, m.idleGen
	deadline := m.lastActivity.Add(m.idleTimeout)
	m.idleTimer = m.afterLocked(deadline, func() {
		m.expire(gen, idleGen, true, sessions.ReasonIdleTimeout)
	})
	if m.warning > 0 && m.warning < m.idleTimeout && deadline.After(m.clock.Now()) {
		m.warnTimer = m.afterLocked(deadline.Add(-m.warning), func() {
			m.warn(gen, idleGen, deadline)
		})
	}
}

// afterLocked schedules fn at the given instant; instants already passed run fn now.
func (m *Monitor) afterLocked(at time.Time, fn func()) clockwork.Timer {
	d := at.Sub(m.clock.Now())
	if d <= 0 {
		go fn()
		return nil
	}
	return m.clock.AfterFunc(d, func() { go fn() })
}

func (m *Monitor) expire(gen, idleGen uint64, idle bool, reason sessions.Reason) {
	m.mu.Lock()
	if !m.running || m.gen != gen || (idle && m.idleGen != idleGen) {
		m.mu.Unlock()
		return
	}
	m.stopTimersLocked()
	m.gen++
	m.running = false
	cb := m.callbacks.OnTimeout
	m.mu.Unlock()

	m.logger.Debug().Str("reason", reason.String()).Msg("session timeout")
	if cb != nil {
		cb(reason)
	}
}

func (m *Monitor) warn(gen, idleGen uint64, deadline time.Time) {
	m.mu.Lock()
	if !m.running || m.gen != gen || m.idleGen != idleGen {
		m.mu.Unlock()
		return
	}
	m.warnTimer = nil
	cb := m.callbacks.OnWarning
	remaining := deadline.Sub(m.clock.Now())
	m.mu.Unlock()

	if cb != nil {
		cb(remaining)
	}
}

func (m *Monitor) stopTimersLocked() {
	stopTimer(m.idleTimer)
	stopTimer(m.warnTimer)
	stopTimer(m.absTimer)
	m.idleTimer, m.warnTimer, m.absTimer = nil, nil, nil
}

func stopTimer(t clockwork.Timer) {
	if t != nil {
		t.Stop()
	}
}
