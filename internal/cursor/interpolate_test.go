package cursor

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luciancaetano/minesync/internal/clock"
)

func distance(a, b Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// TestInterpolatorFirstSighting tests that a new cursor starts at its target
func TestInterpolatorFirstSighting(t *testing.T) {
	t.Parallel()

	ip := NewInterpolator(nil, clock.NewFake(time.Unix(0, 0)))
	ip.Update("p1", 40, 60)

	got, ok := ip.Position("p1")
	if !ok {
		t.Fatal("Position() did not find the cursor")
	}
	if got != (Position{40, 60}) {
		t.Errorf("Position() = %v, want {40 60}", got)
	}
	if ip.Step() {
		t.Error("Step() reported motion for a cursor at its target")
	}
}

// TestInterpolatorConvergence tests that the distance to a fixed target
// strictly decreases and reaches it in bounded steps
func TestInterpolatorConvergence(t *testing.T) {
	t.Parallel()

	ip := NewInterpolator(nil, clock.NewFake(time.Unix(0, 0)))
	ip.Update("p1", 0, 0)
	target := Position{300, -120}
	ip.Update("p1", target.X, target.Y)

	prev := distance(Position{}, target)
	steps := 0
	for ip.Step() {
		steps++
		cur, _ := ip.Position("p1")
		d := distance(cur, target)
		if d >= prev {
			t.Fatalf("step %d: distance %v did not decrease from %v", steps, d, prev)
		}
		prev = d
		if steps > 100 {
			t.Fatal("cursor did not converge within 100 steps")
		}
	}

	cur, _ := ip.Position("p1")
	if cur != target {
		t.Errorf("final position = %v, want %v", cur, target)
	}
	if steps < 10 {
		t.Errorf("converged in %d steps, want smoothing over several frames", steps)
	}
}

// TestInterpolatorFirstStepFraction tests the per-frame interpolation factor
func TestInterpolatorFirstStepFraction(t *testing.T) {
	t.Parallel()

	ip := NewInterpolator(nil, clock.NewFake(time.Unix(0, 0)))
	ip.Update("p1", 0, 0)
	ip.Update("p1", 100, 50)
	ip.Step()

	got, _ := ip.Position("p1")
	if math.Abs(got.X-20) > 1e-9 || math.Abs(got.Y-10) > 1e-9 {
		t.Errorf("Position() after one step = %v, want {20 10}", got)
	}
}

// TestInterpolatorLoopLifecycle tests that the frame loop runs only while
// cursors are tracked
func TestInterpolatorLoopLifecycle(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Unix(0, 0))
	ip := NewInterpolator(nil, clk)

	var frames atomic.Int32
	ip.OnFrame(func(map[string]Position) { frames.Add(1) })

	if ip.Running() {
		t.Fatal("Running() = true before any update")
	}

	ip.Update("p1", 0, 0)
	ip.Update("p2", 10, 10)
	if !ip.Running() {
		t.Fatal("Running() = false after an update")
	}
	ip.Update("p1", 100, 100)

	clk.Advance(160 * time.Millisecond)
	if got := frames.Load(); got != 10 {
		t.Errorf("frames = %d, want 10", got)
	}
	if cur, _ := ip.Position("p1"); cur.X <= 0 || cur.X >= 100 {
		t.Errorf("p1 after 10 frames = %v, want partway to target", cur)
	}

	ip.Remove("p1")
	if !ip.Running() {
		t.Error("loop stopped while a cursor is still tracked")
	}
	ip.Remove("p2")
	if ip.Running() {
		t.Error("loop still running with no cursors")
	}

	before := frames.Load()
	clk.Advance(time.Second)
	if frames.Load() != before {
		t.Error("frames delivered after the loop stopped")
	}
	if clk.Pending() != 0 {
		t.Errorf("Pending() = %d after the loop stopped, want 0", clk.Pending())
	}

	ip.Update("p3", 1, 1)
	if !ip.Running() {
		t.Error("loop did not restart on the next update")
	}
	clk.Advance(16 * time.Millisecond)
	if frames.Load() != before+1 {
		t.Errorf("frames = %d after restart, want %d", frames.Load(), before+1)
	}
}

// TestInterpolatorStop tests that Stop forgets every cursor
func TestInterpolatorStop(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Unix(0, 0))
	ip := NewInterpolator(nil, clk)
	ip.Update("p1", 1, 2)
	ip.Update("p2", 3, 4)

	if got := ip.Positions(); len(got) != 2 || got["p2"] != (Position{3, 4}) {
		t.Errorf("Positions() = %v", got)
	}

	ip.Stop()
	if ip.Len() != 0 || ip.Running() {
		t.Errorf("after Stop: Len() = %d, Running() = %v", ip.Len(), ip.Running())
	}
	if _, ok := ip.Position("p1"); ok {
		t.Error("Position() found a cursor after Stop")
	}
}

// BenchmarkInterpolatorStep benchmarks one frame over a full room
func BenchmarkInterpolatorStep(b *testing.B) {
	ip := NewInterpolator(nil, clock.NewFake(time.Unix(0, 0)))
	for i := 0; i < 32; i++ {
		id := string(rune('a' + i))
		ip.Update(id, 0, 0)
		ip.Update(id, float64(i*10), float64(i*5))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ip.Step()
	}
}
