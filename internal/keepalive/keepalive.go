// Package keepalive detects connections that stopped answering without the
// transport noticing.
package keepalive

import (
	"sync"
	"time"

	"github.com/luciancaetano/minesync/internal/clock"
)

// Config holds the ping schedule.
type Config struct {
	// Interval is the time between two pings.
	Interval time.Duration
	// Timeout is how long a ping may stay unanswered.
	Timeout time.Duration
}

// DefaultConfig returns a ping every 30 seconds with a 10 second deadline.
func DefaultConfig() *Config {
	return &Config{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Monitor sends pings on a fixed interval and reports a timeout when a
// ping is not answered in time.
//
// Every Start and Stop bumps an epoch. Timer callbacks capture the epoch
// they were armed under and do nothing if it changed, so a timer that
// fires while Stop is running is a no-op.
type Monitor struct {
	cfg       Config
	clock     clock.Clock
	ping      func() error
	onTimeout func()

	mu       sync.Mutex
	epoch    uint64
	running  bool
	ticker   clock.Timer
	deadline clock.Timer
	pings    uint64
	lastPong time.Time
}

// New creates a stopped Monitor. ping is called on every tick and
// onTimeout once when a deadline passes; both run without the monitor's
// lock held. A nil cfg uses DefaultConfig and a nil clk the real clock.
func New(cfg *Config, clk clock.Clock, ping func() error, onTimeout func()) *Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Monitor{
		cfg:       *cfg,
		clock:     clk,
		ping:      ping,
		onTimeout: onTimeout,
	}
}

// Start arms the ping schedule. Starting a running monitor restarts it.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.running = true
	m.lastPong = m.clock.Now()
	m.scheduleLocked(m.epoch)
}

// Stop cancels both timers. It is safe to call on a stopped monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Pong records liveness and cancels a pending deadline.
func (m *Monitor) Pong() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastPong = m.clock.Now()
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
}

// LastPong returns the time of the last pong, or of Start if none arrived.
func (m *Monitor) LastPong() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPong
}

// Running reports whether the monitor is armed.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// AwaitingPong reports whether a ping is outstanding.
func (m *Monitor) AwaitingPong() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline != nil
}

func (m *Monitor) stopLocked() {
	m.epoch++
	m.running = false
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
}

func (m *Monitor) scheduleLocked(epoch uint64) {
	m.ticker = m.clock.AfterFunc(m.cfg.Interval, func() { m.tick(epoch) })
}

func (m *Monitor) tick(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.running {
		m.mu.Unlock()
		return
	}
	m.scheduleLocked(epoch)
	if m.deadline == nil {
		m.pings++
		seq := m.pings
		m.deadline = m.clock.AfterFunc(m.cfg.Timeout, func() { m.expire(epoch, seq) })
	}
	ping := m.ping
	m.mu.Unlock()

	// A failed ping is left to the deadline: a transport that cannot
	// write will not deliver a pong either.
	if ping != nil {
		_ = ping()
	}
}

// expire handles a deadline. seq identifies the ping it was armed for, so
// a deadline cancelled by Pong while already firing is ignored.
func (m *Monitor) expire(epoch, seq uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.running || seq != m.pings || m.deadline == nil {
		m.mu.Unlock()
		return
	}
	m.deadline = nil
	m.stopLocked()
	onTimeout := m.onTimeout
	m.mu.Unlock()

	if onTimeout != nil {
		onTimeout()
	}
}
