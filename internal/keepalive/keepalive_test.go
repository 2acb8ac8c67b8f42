package keepalive

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luciancaetano/minesync/internal/clock"
)

type pingRecorder struct {
	pings    atomic.Int32
	timeouts atomic.Int32
	pingErr  error
}

func newMonitor(t *testing.T, p *pingRecorder) (*Monitor, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	m := New(DefaultConfig(), clk, func() error {
		p.pings.Add(1)
		return p.pingErr
	}, func() {
		p.timeouts.Add(1)
	})
	return m, clk
}

// TestDefaultConfig tests the default ping schedule
func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Interval != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", cfg.Interval)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
}

// TestPingOnInterval tests that pings follow the configured interval
func TestPingOnInterval(t *testing.T) {
	t.Parallel()

	p := &pingRecorder{}
	m, clk := newMonitor(t, p)
	m.Start()

	clk.Advance(29 * time.Second)
	if got := p.pings.Load(); got != 0 {
		t.Fatalf("pings before interval = %d, want 0", got)
	}

	clk.Advance(time.Second)
	if got := p.pings.Load(); got != 1 {
		t.Fatalf("pings after interval = %d, want 1", got)
	}
	if !m.AwaitingPong() {
		t.Error("AwaitingPong() = false after a ping")
	}

	m.Pong()
	clk.Advance(30 * time.Second)
	if got := p.pings.Load(); got != 2 {
		t.Errorf("pings after second interval = %d, want 2", got)
	}
}

// TestPongPreventsTimeout tests that an answered ping keeps the monitor armed
func TestPongPreventsTimeout(t *testing.T) {
	t.Parallel()

	p := &pingRecorder{}
	m, clk := newMonitor(t, p)
	m.Start()

	clk.Advance(30 * time.Second)
	clk.Advance(9 * time.Second)
	m.Pong()
	clk.Advance(5 * time.Second)

	if got := p.timeouts.Load(); got != 0 {
		t.Errorf("timeouts = %d, want 0", got)
	}
	if !m.Running() {
		t.Error("Running() = false after an answered ping")
	}
	if want := clk.Now().Add(-5 * time.Second); !m.LastPong().Equal(want) {
		t.Errorf("LastPong() = %v, want %v", m.LastPong(), want)
	}
}

// TestTimeoutWithoutPong tests that a missing pong reports exactly one timeout
func TestTimeoutWithoutPong(t *testing.T) {
	t.Parallel()

	p := &pingRecorder{}
	m, clk := newMonitor(t, p)
	m.Start()

	clk.Advance(30 * time.Second)
	clk.Advance(10 * time.Second)

	if got := p.timeouts.Load(); got != 1 {
		t.Fatalf("timeouts = %d, want 1", got)
	}
	if m.Running() {
		t.Error("Running() = true after a timeout")
	}

	clk.Advance(5 * time.Minute)
	if got := p.timeouts.Load(); got != 1 {
		t.Errorf("timeouts after idle time = %d, want 1", got)
	}
	if got := p.pings.Load(); got != 1 {
		t.Errorf("pings after timeout = %d, want 1", got)
	}
	if clk.Pending() != 0 {
		t.Errorf("Pending() = %d timers after timeout, want 0", clk.Pending())
	}
}

// TestFailedPingStillTimesOut tests that ping write errors fall through to
// the deadline
func TestFailedPingStillTimesOut(t *testing.T) {
	t.Parallel()

	p := &pingRecorder{pingErr: errors.New("broken pipe")}
	m, clk := newMonitor(t, p)
	m.Start()

	clk.Advance(40 * time.Second)
	if got := p.timeouts.Load(); got != 1 {
		t.Errorf("timeouts = %d, want 1", got)
	}
}

// TestStopCancelsTimers tests that a stopped monitor never fires
func TestStopCancelsTimers(t *testing.T) {
	t.Parallel()

	p := &pingRecorder{}
	m, clk := newMonitor(t, p)
	m.Start()

	clk.Advance(30 * time.Second)
	m.Stop()
	m.Stop()
	clk.Advance(time.Hour)

	if got := p.timeouts.Load(); got != 0 {
		t.Errorf("timeouts after Stop = %d, want 0", got)
	}
	if got := p.pings.Load(); got != 1 {
		t.Errorf("pings after Stop = %d, want 1", got)
	}
	if clk.Pending() != 0 {
		t.Errorf("Pending() = %d after Stop, want 0", clk.Pending())
	}
}

// TestStaleDeadlineIsNoop tests that a deadline captured before Stop does
// nothing when it runs afterwards
func TestStaleDeadlineIsNoop(t *testing.T) {
	t.Parallel()

	p := &pingRecorder{}
	m, clk := newMonitor(t, p)
	m.Start()
	clk.Advance(30 * time.Second)

	m.mu.Lock()
	epoch, seq := m.epoch, m.pings
	m.mu.Unlock()

	m.Stop()
	m.expire(epoch, seq)

	m.Start()
	m.expire(epoch, seq)

	if got := p.timeouts.Load(); got != 0 {
		t.Errorf("timeouts = %d, want 0", got)
	}
	if !m.Running() {
		t.Error("stale deadline stopped a restarted monitor")
	}
}

// TestRestartResetsSchedule tests that Start on a running monitor starts
// a fresh interval
func TestRestartResetsSchedule(t *testing.T) {
	t.Parallel()

	p := &pingRecorder{}
	m, clk := newMonitor(t, p)
	m.Start()

	clk.Advance(25 * time.Second)
	m.Start()
	clk.Advance(10 * time.Second)
	if got := p.pings.Load(); got != 0 {
		t.Errorf("pings = %d, want 0 after restart", got)
	}

	clk.Advance(20 * time.Second)
	if got := p.pings.Load(); got != 1 {
		t.Errorf("pings = %d, want 1", got)
	}
}
