package cursor

import (
	"math"
	"sync"
	"time"

	"github.com/luciancaetano/minesync/internal/clock"
)

// InterpolatorConfig tunes remote cursor smoothing.
type InterpolatorConfig struct {
	// Factor is the fraction of the remaining distance covered per frame.
	Factor float64
	// Epsilon is the per-axis distance at which a cursor snaps to its
	// target.
	Epsilon float64
	// FrameInterval is the time between two frames of the redraw loop.
	FrameInterval time.Duration
}

// DefaultInterpolatorConfig returns a factor of 0.2, a 0.05 pixel snap and
// a 60 Hz frame rate.
func DefaultInterpolatorConfig() *InterpolatorConfig {
	return &InterpolatorConfig{
		Factor:        0.2,
		Epsilon:       0.05,
		FrameInterval: 16 * time.Millisecond,
	}
}

type tracked struct {
	current Position
	target  Position
}

// Interpolator tracks remote cursors and moves each rendered position
// toward the latest received one on every frame. The frame loop runs only
// while at least one cursor is tracked.
type Interpolator struct {
	cfg   InterpolatorConfig
	clock clock.Clock

	mu      sync.Mutex
	cursors map[string]*tracked
	running bool
	epoch   uint64
	timer   clock.Timer
	onFrame func(map[string]Position)
}

// NewInterpolator creates an idle Interpolator. A nil cfg uses
// DefaultInterpolatorConfig and a nil clk the real clock.
func NewInterpolator(cfg *InterpolatorConfig, clk clock.Clock) *Interpolator {
	if cfg == nil {
		cfg = DefaultInterpolatorConfig()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Interpolator{
		cfg:     *cfg,
		clock:   clk,
		cursors: make(map[string]*tracked),
	}
}

// OnFrame registers fn to receive a snapshot of rendered positions after
// every frame of the loop.
func (i *Interpolator) OnFrame(fn func(map[string]Position)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onFrame = fn
}

// Update sets the target of player id. A player seen for the first time
// starts at the target.
func (i *Interpolator) Update(id string, x, y float64) {
	i.mu.Lock()
	defer i.mu.Unlock()

	p := Position{X: x, Y: y}
	if c, ok := i.cursors[id]; ok {
		c.target = p
	} else {
		i.cursors[id] = &tracked{current: p, target: p}
	}
	if !i.running {
		i.running = true
		i.scheduleLocked()
	}
}

// Remove stops tracking id. The loop ends when the last cursor is removed.
func (i *Interpolator) Remove(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.cursors, id)
	if len(i.cursors) == 0 {
		i.haltLocked()
	}
}

// Stop forgets every cursor and ends the loop.
func (i *Interpolator) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.cursors = make(map[string]*tracked)
	i.haltLocked()
}

// Step advances every cursor by one frame and reports whether any is still
// short of its target.
func (i *Interpolator) Step() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stepLocked()
}

// Position returns the rendered position of id.
func (i *Interpolator) Position(id string) (Position, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	c, ok := i.cursors[id]
	if !ok {
		return Position{}, false
	}
	return c.current, true
}

// Positions returns a copy of all rendered positions.
func (i *Interpolator) Positions() map[string]Position {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snapshotLocked()
}

// Len returns the number of tracked cursors.
func (i *Interpolator) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.cursors)
}

// Running reports whether the frame loop is active.
func (i *Interpolator) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running
}

func (i *Interpolator) stepLocked() bool {
	moving := false
	for _, c := range i.cursors {
		dx := c.target.X - c.current.X
		dy := c.target.Y - c.current.Y
		if math.Abs(dx) < i.cfg.Epsilon && math.Abs(dy) < i.cfg.Epsilon {
			c.current = c.target
			continue
		}
		c.current.X += dx * i.cfg.Factor
		c.current.Y += dy * i.cfg.Factor
		moving = true
	}
	return moving
}

func (i *Interpolator) snapshotLocked() map[string]Position {
	out := make(map[string]Position, len(i.cursors))
	for id, c := range i.cursors {
		out[id] = c.current
	}
	return out
}

func (i *Interpolator) scheduleLocked() {
	epoch := i.epoch
	i.timer = i.clock.AfterFunc(i.cfg.FrameInterval, func() { i.frame(epoch) })
}

func (i *Interpolator) haltLocked() {
	i.epoch++
	i.running = false
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
}

func (i *Interpolator) frame(epoch uint64) {
	i.mu.Lock()
	if epoch != i.epoch || !i.running {
		i.mu.Unlock()
		return
	}
	i.stepLocked()
	if len(i.cursors) == 0 {
		i.haltLocked()
		i.mu.Unlock()
		return
	}
	i.scheduleLocked()
	onFrame := i.onFrame
	var snapshot map[string]Position
	if onFrame != nil {
		snapshot = i.snapshotLocked()
	}
	i.mu.Unlock()

	if onFrame != nil {
		onFrame(snapshot)
	}
}
