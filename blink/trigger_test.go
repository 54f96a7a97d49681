package blink

import (
	"testing"
	"time"
)

var t0 = time.Unix(1_700_000_000, 0)

// feed plays EAR readings at 30 Hz starting at t0 and returns the results.
func feed(tr *Trigger, ears ...float64) []Result {
	out := make([]Result, len(ears))
	for i, ear := range ears {
		out[i] = tr.Update(ear, t0.Add(time.Duration(i)*time.Second/30))
	}
	return out
}

func repeat(ear float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = ear
	}
	return out
}

func countFired(rs []Result) (fired, rejected int) {
	for _, r := range rs {
		if r.Fired {
			fired++
		}
		if r.Rejected {
			rejected++
		}
	}
	return
}

func TestLongBlinkFiresExactlyOnce(t *testing.T) {
	var triggers int
	tr := New(Config{Threshold: 0.21, LongBlink: time.Second}, WithTriggerHandler(func(time.Time) { triggers++ }))

	// 1.2 s below threshold at 30 Hz.
	results := feed(tr, repeat(0.15, 36)...)

	fired, _ := countFired(results)
	if fired != 1 || triggers != 1 {
		t.Fatalf("fired = %d, handler calls = %d, want 1", fired, triggers)
	}
	if got := tr.State(); got != Cooldown {
		t.Errorf("State() = %v, want cooldown", got)
	}
	for i, r := range results {
		if r.Fired && r.Closure < time.Second {
			t.Errorf("fired at reading %d after %v of closure", i, r.Closure)
		}
	}
}

func TestCooldownUntilReopen(t *testing.T) {
	tr := New(Config{})

	ears := append(repeat(0.1, 40), 0.3)
	ears = append(ears, repeat(0.1, 40)...)
	fired, _ := countFired(feed(tr, ears...))
	if fired != 2 {
		t.Errorf("fired = %d, want 2 (one per closure)", fired)
	}
}

func TestShortBlinkOnlyPauses(t *testing.T) {
	var pauses []bool
	tr := New(Config{}, WithPauseHandler(func(p bool) { pauses = append(pauses, p) }))

	// ~130 ms closure, then open.
	results := feed(tr, 0.3, 0.1, 0.1, 0.1, 0.1, 0.3, 0.3)

	if fired, _ := countFired(results); fired != 0 {
		t.Errorf("fired = %d on a short blink", fired)
	}
	if results[2].State != Closing {
		t.Errorf("state during short closure = %v, want closing", results[2].State)
	}
	if len(pauses) != 2 || !pauses[0] || pauses[1] {
		t.Errorf("pause notifications = %v, want [true false]", pauses)
	}
	if tr.State() != Open {
		t.Errorf("State() = %v, want open", tr.State())
	}
}

func TestMediumClosureDoesNotFire(t *testing.T) {
	tr := New(Config{})
	// 500 ms: past the short blink, short of the long blink.
	results := feed(tr, append(repeat(0.1, 15), 0.3)...)

	if fired, _ := countFired(results); fired != 0 {
		t.Errorf("fired = %d, want 0", fired)
	}
	if results[10].State != Closed {
		t.Errorf("state at 333ms = %v, want closed", results[10].State)
	}
}

func TestThresholdIsStrict(t *testing.T) {
	tr := New(Config{Threshold: 0.21})
	if fired, _ := countFired(feed(tr, repeat(0.21, 60)...)); fired != 0 {
		t.Errorf("EAR equal to the threshold counted as closed")
	}
	if tr.State() != Open {
		t.Errorf("State() = %v, want open", tr.State())
	}
}

func TestGateRejectsWithoutQueueing(t *testing.T) {
	busy := true
	var triggers int
	tr := New(Config{},
		WithGate(func() bool { return busy }),
		WithTriggerHandler(func(time.Time) { triggers++ }),
	)

	results := feed(tr, repeat(0.1, 36)...)
	fired, rejected := countFired(results)
	if fired != 0 || rejected != 1 || triggers != 0 {
		t.Fatalf("fired = %d, rejected = %d, handler calls = %d", fired, rejected, triggers)
	}

	// Becoming idle while still closed must not replay the dropped trigger.
	busy = false
	r := tr.Update(0.1, t0.Add(2*time.Second))
	if r.Fired || triggers != 0 {
		t.Error("dropped trigger was replayed")
	}
}

func TestLargeFrameGapFires(t *testing.T) {
	tr := New(Config{})
	tr.Update(0.1, t0)
	r := tr.Update(0.1, t0.Add(1500*time.Millisecond))
	if !r.Fired {
		t.Errorf("closure spanning a frame gap did not fire: %+v", r)
	}
}

func TestResetForgetsClosure(t *testing.T) {
	var triggers int
	var paused []bool
	tr := New(Config{},
		WithTriggerHandler(func(time.Time) { triggers++ }),
		WithPauseHandler(func(p bool) { paused = append(paused, p) }),
	)

	// Closed for 300ms, then the source goes away for 2s.
	feed(tr, repeat(0.1, 10)...)
	if got := tr.State(); got != Closed {
		t.Fatalf("State() = %v, want closed", got)
	}
	tr.Reset()
	if got := tr.State(); got != Open {
		t.Errorf("State() after Reset = %v, want open", got)
	}
	if len(paused) != 2 || paused[0] != true || paused[1] != false {
		t.Errorf("pause notifications = %v, want [true false]", paused)
	}

	r := tr.Update(0.1, t0.Add(2300*time.Millisecond))
	if r.Fired || triggers != 0 {
		t.Fatalf("first closed frame after reset fired: %+v", r)
	}
	if r.State != Closing || r.Closure != 0 {
		t.Errorf("after reset = %+v, want a fresh closure", r)
	}

	// Without Reset the same gap fires.
	tr2 := New(Config{})
	feed(tr2, repeat(0.1, 10)...)
	if r := tr2.Update(0.1, t0.Add(2300*time.Millisecond)); !r.Fired {
		t.Errorf("gap without reset did not fire: %+v", r)
	}
}
