package activity_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-auth-session/activity"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testFixture struct {
	clock   *clockwork.FakeClock
	monitor *activity.Monitor

	mu       sync.Mutex
	reasons  []sessions.Reason
	warnings []time.Duration
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{clock: clockwork.NewFakeClockAt(t0)}
	f.monitor = activity.NewMonitor(config.New(),
		activity.WithClock(f.clock),
		activity.WithLogger(zerolog.Nop()),
	)
	t.Cleanup(f.monitor.Stop)
	return f
}

func (f *testFixture) start(startedAt, lastActivity time.Time) {
	f.monitor.Start(startedAt, lastActivity, activity.Callbacks{
		OnTimeout: func(r sessions.Reason) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.reasons = append(f.reasons, r)
		},
		OnWarning: func(d time.Duration) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.warnings = append(f.warnings, d)
		},
	})
}

func (f *testFixture) timeouts() []sessions.Reason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sessions.Reason(nil), f.reasons...)
}

func (f *testFixture) warningCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.warnings)
}

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
	quiet   = 50 * time.Millisecond
)

// TestMonitor_IdleTimeout fires after 30 minutes without activity
func TestMonitor_IdleTimeout(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t0, t0)

	f.clock.Advance(29 * time.Minute)
	require.Never(t, func() bool { return len(f.timeouts()) > 0 }, quiet, tick)

	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(f.timeouts()) == 1 }, waitFor, tick)
	require.Equal(t, sessions.ReasonIdleTimeout, f.timeouts()[0])

	_, _, running := f.monitor.Deadlines()
	require.False(t, running)
}

// TestMonitor_ActivityResetsIdle checks activity at T+29m defers the idle timeout to T+59m
func TestMonitor_ActivityResetsIdle(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t0, t0)

	f.clock.Advance(29 * time.Minute)
	at, ok := f.monitor.Touch()
	require.True(t, ok)
	require.Equal(t, t0.Add(29*time.Minute), at)

	f.clock.Advance(29 * time.Minute)
	require.Never(t, func() bool { return len(f.timeouts()) > 0 }, quiet, tick)

	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(f.timeouts()) == 1 }, waitFor, tick)
	require.Equal(t, sessions.ReasonIdleTimeout, f.timeouts()[0])
}

// TestMonitor_AbsoluteTimeout keeps the user active every minute for 8 hours
func TestMonitor_AbsoluteTimeout(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t0, t0)

	for i := 0; i < 8*60-1; i++ {
		f.clock.Advance(time.Minute)
		_, ok := f.monitor.Touch()
		require.True(t, ok)
	}
	require.Never(t, func() bool { return len(f.timeouts()) > 0 }, quiet, tick)

	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(f.timeouts()) == 1 }, waitFor, tick)
	require.Equal(t, sessions.ReasonAbsoluteTimeout, f.timeouts()[0])
	require.Zero(t, f.warningCount())
}

func TestMonitor_Debounce(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t0, t0)

	first, ok := f.monitor.Touch()
	require.True(t, ok)

	f.clock.Advance(100 * time.Millisecond)
	last, ok := f.monitor.Touch()
	require.False(t, ok)
	require.Equal(t, first, last)

	f.clock.Advance(250 * time.Millisecond)
	at, ok := f.monitor.Touch()
	require.True(t, ok)
	require.Equal(t, t0.Add(350*time.Millisecond), at)
	require.Equal(t, at, f.monitor.LastActivity())
}

// TestMonitor_IdleWarning publishes once, two minutes before the idle timeout
func TestMonitor_IdleWarning(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t0, t0)

	f.clock.Advance(28 * time.Minute)
	require.Eventually(t, func() bool { return f.warningCount() == 1 }, waitFor, tick)

	f.mu.Lock()
	require.Equal(t, 2*time.Minute, f.warnings[0])
	f.mu.Unlock()

	_, ok := f.monitor.Touch()
	require.True(t, ok)
	f.clock.Advance(27 * time.Minute)
	require.Never(t, func() bool { return f.warningCount() > 1 }, quiet, tick)
	require.Empty(t, f.timeouts())
}

func TestMonitor_Stop(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t0, t0)
	f.monitor.Stop()

	_, ok := f.monitor.Touch()
	require.False(t, ok)

	f.clock.Advance(9 * time.Hour)
	require.Never(t, func() bool { return len(f.timeouts()) > 0 || f.warningCount() > 0 }, quiet, tick)
}

// TestMonitor_StartPastDeadline fires immediately for a rehydrated session already idle
func TestMonitor_StartPastDeadline(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t0.Add(-time.Hour), t0.Add(-31*time.Minute))

	require.Eventually(t, func() bool { return len(f.timeouts()) == 1 }, waitFor, tick)
	require.Equal(t, sessions.ReasonIdleTimeout, f.timeouts()[0])
}

func TestMonitor_Deadlines(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t0, t0.Add(time.Minute))

	idle, absolute, running := f.monitor.Deadlines()
	require.True(t, running)
	require.Equal(t, t0.Add(31*time.Minute), idle)
	require.Equal(t, t0.Add(8*time.Hour), absolute)
}
