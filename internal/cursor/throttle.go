// Package cursor shapes pointer traffic: the Throttler bounds how often the
// local position is sent and the Interpolator smooths remote positions
// between network updates.
package cursor

import (
	"math"
	"sync"
	"time"

	"github.com/luciancaetano/minesync/internal/clock"
)

// Position is a pointer position in board pixels.
type Position struct {
	X float64
	Y float64
}

// Round2 rounds both coordinates to two decimal places.
func Round2(p Position) Position {
	return Position{X: round2(p.X), Y: round2(p.Y)}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ThrottleConfig tunes the throttler.
type ThrottleConfig struct {
	// Interval is the minimum time between two sends.
	Interval time.Duration
	// MinDelta is the per-axis distance below which a position inside
	// the interval is dropped.
	MinDelta float64
}

// DefaultThrottleConfig returns 100ms and 5 pixels.
func DefaultThrottleConfig() *ThrottleConfig {
	return &ThrottleConfig{
		Interval: 100 * time.Millisecond,
		MinDelta: 5,
	}
}

// Outcome describes what Push did with a position.
type Outcome uint8

const (
	// Sent means the position went out immediately.
	Sent Outcome = iota
	// Scheduled means a deferred send was armed for the position.
	Scheduled
	// Replaced means the position overwrote one already waiting for the
	// deferred send.
	Replaced
	// Dropped means the position was too close to the last sent one.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Scheduled:
		return "scheduled"
	case Replaced:
		return "replaced"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Coalesced reports whether the outcome kept a position from being sent.
func (o Outcome) Coalesced() bool {
	return o == Replaced || o == Dropped
}

// Throttler rate limits a single player's pointer updates. Only the most
// recent position is ever sent and at most one deferred send is armed.
type Throttler struct {
	cfg   ThrottleConfig
	clock clock.Clock
	send  func(Position)

	mu      sync.Mutex
	epoch   uint64
	hasLast bool
	last    Position
	lastAt  time.Time
	pending *Position
	timer   clock.Timer
}

// NewThrottler creates a Throttler that hands positions to send. send is
// called without the throttler's lock held. A nil cfg uses
// DefaultThrottleConfig and a nil clk the real clock.
func NewThrottler(cfg *ThrottleConfig, clk clock.Clock, send func(Position)) *Throttler {
	if cfg == nil {
		cfg = DefaultThrottleConfig()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Throttler{cfg: *cfg, clock: clk, send: send}
}

// Push offers a new local position.
func (t *Throttler) Push(x, y float64) Outcome {
	p := Round2(Position{X: x, Y: y})

	t.mu.Lock()
	now := t.clock.Now()
	elapsed := now.Sub(t.lastAt)
	t.pending = &p

	if t.hasLast && elapsed < t.cfg.Interval &&
		math.Abs(p.X-t.last.X) < t.cfg.MinDelta && math.Abs(p.Y-t.last.Y) < t.cfg.MinDelta {
		t.mu.Unlock()
		return Dropped
	}

	if !t.hasLast || elapsed >= t.cfg.Interval {
		t.cancelLocked()
		t.markSentLocked(p, now)
		t.mu.Unlock()
		t.deliver(p)
		return Sent
	}

	if t.timer != nil {
		t.mu.Unlock()
		return Replaced
	}
	epoch := t.epoch
	t.timer = t.clock.AfterFunc(t.cfg.Interval-elapsed, func() { t.flush(epoch) })
	t.mu.Unlock()
	return Scheduled
}

// Stop cancels a deferred send and discards the pending position.
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

// Reset stops the throttler and forgets the last sent position, so the
// next Push is sent immediately.
func (t *Throttler) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.hasLast = false
	t.last = Position{}
	t.lastAt = time.Time{}
}

// Last returns the last sent position.
func (t *Throttler) Last() (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// Armed reports whether a deferred send is outstanding.
func (t *Throttler) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

func (t *Throttler) cancelLocked() {
	t.epoch++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
}

func (t *Throttler) markSentLocked(p Position, at time.Time) {
	t.pending = nil
	t.hasLast = true
	t.last = p
	t.lastAt = at
}

func (t *Throttler) flush(epoch uint64) {
	t.mu.Lock()
	if epoch != t.epoch {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	if t.pending == nil {
		t.mu.Unlock()
		return
	}
	p := *t.pending
	t.markSentLocked(p, t.clock.Now())
	t.mu.Unlock()

	t.deliver(p)
}

func (t *Throttler) deliver(p Position) {
	if t.send != nil {
		t.send(p)
	}
}
