package gaze

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.aimuz.me/iris/internal/types"
)

var t0 = time.Unix(1_700_000_000, 0)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func TestFilterFiresOnceAfterDwell(t *testing.T) {
	f := NewFilter(30, 150*time.Millisecond)

	// 60 Hz, jitter well inside the radius.
	fired := 0
	firedAt := -1
	for i := 0; i <= 30; i++ {
		ms := i * 1000 / 60
		p := types.Point{X: 500 + float64(i%3), Y: 300 - float64(i%2)}
		if f.Update(p, at(ms)) {
			fired++
			firedAt = ms
		}
	}

	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}
	if firedAt < 150 {
		t.Errorf("fired at %dms, before the 150ms dwell", firedAt)
	}
}

func TestFilterHardResetBeyondRadius(t *testing.T) {
	f := NewFilter(30, 150*time.Millisecond)
	origin := types.Point{X: 100, Y: 100}

	f.Update(origin, at(0))
	f.Update(origin, at(100))
	if got := f.State().Stable; got != 100*time.Millisecond {
		t.Fatalf("stable = %v, want 100ms", got)
	}

	jump := types.Point{X: 100, Y: 131} // 31px > radius
	if f.Update(jump, at(120)) {
		t.Fatal("jump should never fire")
	}
	st := f.State()
	if st.Stable != 0 || st.Anchor != jump || !st.WindowStart.Equal(at(120)) {
		t.Errorf("after jump state = %+v, want reset at jump", st)
	}

	// 140ms later from the new anchor is still short of the dwell.
	if f.Update(jump, at(260)) {
		t.Error("fired 140ms after reset")
	}
	if !f.Update(jump, at(270)) {
		t.Error("did not fire 150ms after reset")
	}
}

func TestFilterBoundaryIsInclusive(t *testing.T) {
	f := NewFilter(30, 150*time.Millisecond)
	f.Update(types.Point{}, at(0))
	if !f.Update(types.Point{X: 30}, at(150)) {
		t.Error("displacement equal to radius should accumulate and fire")
	}
}

// Randomised walk: the filter must never report stable before the
// accumulated time since the last consecutive jump beyond radius reaches
// the dwell.
func TestFilterNeverFiresEarly(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const radius, dwell = 30.0, 150 * time.Millisecond

	for run := 0; run < 200; run++ {
		f := NewFilter(radius, dwell)
		var prev types.Point
		var windowStart time.Time
		now := t0
		pos := types.Point{X: 500, Y: 500}

		for i := 0; i < 200; i++ {
			now = now.Add(time.Duration(5+rng.Intn(30)) * time.Millisecond)
			pos.X += rng.NormFloat64() * 20
			pos.Y += rng.NormFloat64() * 20

			if i == 0 || pos.Distance(prev) > radius {
				windowStart = now
			}
			prev = pos
			if f.Update(pos, now) && now.Sub(windowStart) < dwell {
				t.Fatalf("run %d: fired %v into the window", run, now.Sub(windowStart))
			}
		}
	}
}

func TestFilterResetsOnConsecutiveJumps(t *testing.T) {
	f := NewFilter(30, 150*time.Millisecond)
	f.Update(types.Point{X: -25}, at(0))

	// Every step moves 50px although each sample stays within 25px of
	// the origin.
	for i := 1; i <= 20; i++ {
		x := 25.0
		if i%2 == 0 {
			x = -25
		}
		if f.Update(types.Point{X: x}, at(i*50)) {
			t.Fatalf("fired at %dms with 50px steps", i*50)
		}
		if st := f.State(); st.Stable != 0 {
			t.Fatalf("step %d: stable = %v, want 0", i, st.Stable)
		}
	}
}

func TestFilterDriftWithinRadiusAccumulates(t *testing.T) {
	f := NewFilter(30, 150*time.Millisecond)

	// Slow drift: 20px per step, 80px from the start after four steps.
	fired := false
	for i := 0; i <= 4; i++ {
		p := types.Point{X: float64(i * 20)}
		fired = f.Update(p, at(i*50)) || fired
	}
	st := f.State()
	if !fired {
		t.Errorf("did not fire after 200ms of in-radius steps, state = %+v", st)
	}
	if st.Anchor != (types.Point{}) || st.LastAccepted != (types.Point{X: 80}) {
		t.Errorf("anchor = %v, last accepted = %v", st.Anchor, st.LastAccepted)
	}
}

func TestFilterRecentMovementsBounded(t *testing.T) {
	f := NewFilter(30, time.Second)
	for i := 0; i < 25; i++ {
		f.Update(types.Point{X: float64(i)}, at(i*10))
	}
	recent := f.State().Recent
	if len(recent) != movementCapacity {
		t.Fatalf("len(recent) = %d, want %d", len(recent), movementCapacity)
	}
	for i := 1; i < len(recent); i++ {
		if !recent[i].At.After(recent[i-1].At) {
			t.Fatalf("recent movements not chronological: %v", recent)
		}
	}
	if !recent[len(recent)-1].At.Equal(at(240)) {
		t.Errorf("newest movement at %v, want %v", recent[len(recent)-1].At, at(240))
	}
}

func TestCadence(t *testing.T) {
	c := NewCadence(60, 15, 2*time.Second)
	normal, reduced := time.Second/60, time.Second/15

	tests := []struct {
		name  string
		setup func()
		now   time.Time
		want  time.Duration
	}{
		{name: "idle", setup: func() {}, now: at(0), want: normal},
		{name: "heavy", setup: func() { c.SetHeavy(true, at(0)) }, now: at(500), want: reduced},
		{name: "heavy again keeps start", setup: func() { c.SetHeavy(true, at(1500)) }, now: at(1900), want: reduced},
		{name: "ceiling restores", setup: func() {}, now: at(2000), want: normal},
		{name: "hint cleared", setup: func() { c.SetHeavy(true, at(3000)); c.SetHeavy(false, at(3100)) }, now: at(3200), want: normal},
	}

	for _, tt := range tests {
		tt.setup()
		if got := c.Interval(tt.now); got != tt.want {
			t.Errorf("%s: Interval() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestProcessorCadenceDoesNotAffectAcceptance(t *testing.T) {
	var stable int
	p := NewProcessor(Config{Radius: 30, Dwell: 150 * time.Millisecond}, Handlers{
		Stable: func(types.Point) { stable++ },
	})

	p.SetHeavy(true)
	for i := 0; i <= 20; i++ {
		p.Ingest(types.GazeSample{Point: types.Point{X: 10, Y: 10}, Timestamp: at(i * 16)})
	}
	if got := p.Accepted(); got != 21 {
		t.Errorf("Accepted() = %d, want 21", got)
	}
	if stable != 1 {
		t.Errorf("stable events = %d, want 1", stable)
	}
}

func TestProcessorSmoothing(t *testing.T) {
	p := NewProcessor(Config{Smoothing: 0.25}, Handlers{})
	p.Ingest(types.GazeSample{Point: types.Point{X: 0, Y: 0}, Timestamp: at(0)})
	p.Ingest(types.GazeSample{Point: types.Point{X: 100, Y: 40}, Timestamp: at(16)})

	got, ok := p.Position()
	if !ok {
		t.Fatal("Position() not seeded")
	}
	if got.X != 25 || got.Y != 10 {
		t.Errorf("Position() = %+v, want {25 10}", got)
	}
}

func TestProcessorRunPublishesUnlessPaused(t *testing.T) {
	var mu sync.Mutex
	var published []types.Point
	p := NewProcessor(Config{NormalRate: 200}, Handlers{
		Position: func(pt types.Point) {
			mu.Lock()
			published = append(published, pt)
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.SetPaused(true)
	p.Ingest(types.GazeSample{Point: types.Point{X: 1, Y: 1}, Timestamp: at(0)})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	n := len(published)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("published %d positions while paused", n)
	}

	p.SetPaused(false)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(published) != 1 || published[0] != (types.Point{X: 1, Y: 1}) {
		t.Errorf("published = %v, want one {1 1}", published)
	}
}

func TestProcessorRecent(t *testing.T) {
	p := NewProcessor(Config{}, Handlers{})
	p.Ingest(types.GazeSample{Point: types.Point{X: 0, Y: 0}, Timestamp: at(0)})
	p.Ingest(types.GazeSample{Point: types.Point{X: 3, Y: 4}, Timestamp: at(10)})
	p.Ingest(types.GazeSample{Point: types.Point{X: 0, Y: 100}, Timestamp: at(20)})

	got := p.Recent()
	if len(got) != 2 {
		t.Fatalf("Recent() len = %d, want 2", len(got))
	}
	if got[0].Displacement != 5 || got[1].Displacement != 100 {
		t.Errorf("Recent() = %+v", got)
	}
	if !got[0].At.Before(got[1].At) {
		t.Error("Recent() not chronological")
	}

	p.Reset()
	if len(p.Recent()) != 0 {
		t.Error("Recent() after Reset should be empty")
	}
}
