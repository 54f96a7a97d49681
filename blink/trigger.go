// Package blink detects deliberate long eye closures from eye-aspect-ratio
// readings and turns them into capture triggers.
package blink

import (
	"log/slog"
	"sync"
	"time"
)

// State is the eye-closure state.
type State int

const (
	Open State = iota
	Closing
	Closed
	Cooldown // fired; waits for the eyes to reopen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Config configures the trigger.
type Config struct {
	Threshold  float64       // EAR below this counts as closed
	ShortBlink time.Duration // closures shorter than this are ordinary blinks
	LongBlink  time.Duration // continuous closure that fires a trigger
}

// Result reports what a single reading did.
type Result struct {
	State    State
	Fired    bool // a trigger was emitted
	Rejected bool // a trigger was due but the gate refused it
	Closure  time.Duration
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithGate sets the busy check. When it returns true at the moment a long
// blink completes, the trigger is dropped.
func WithGate(busy func() bool) Option {
	return func(t *Trigger) { t.busy = busy }
}

// WithPauseHandler is called with true when the eyes start closing and
// false when they reopen.
func WithPauseHandler(fn func(paused bool)) Option {
	return func(t *Trigger) { t.onPause = fn }
}

// WithTriggerHandler is called once per accepted long blink.
func WithTriggerHandler(fn func(at time.Time)) Option {
	return func(t *Trigger) { t.onTrigger = fn }
}

// Trigger is the long-blink state machine. Time comes from the sample
// timestamps, never the wall clock.
type Trigger struct {
	busy      func() bool
	onPause   func(bool)
	onTrigger func(time.Time)

	mu     sync.Mutex
	cfg    Config
	state  State
	since  time.Time
	paused bool
}

// New creates a trigger. Zero config values fall back to defaults.
func New(cfg Config, opts ...Option) *Trigger {
	t := &Trigger{cfg: withDefaults(cfg)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func withDefaults(cfg Config) Config {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.21
	}
	if cfg.LongBlink <= 0 {
		cfg.LongBlink = time.Second
	}
	if cfg.ShortBlink <= 0 || cfg.ShortBlink > cfg.LongBlink {
		cfg.ShortBlink = min(200*time.Millisecond, cfg.LongBlink)
	}
	return cfg
}

// SetConfig replaces the thresholds. An in-progress closure keeps its start.
func (t *Trigger) SetConfig(cfg Config) {
	t.mu.Lock()
	t.cfg = withDefaults(cfg)
	t.mu.Unlock()
}

// State returns the current state.
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reset returns the machine to Open and forgets any closure in progress.
// Call it when the sample source restarts.
func (t *Trigger) Reset() {
	t.mu.Lock()
	t.state = Open
	t.since = time.Time{}
	pauseChanged := t.setPaused(false)
	t.mu.Unlock()
	t.notifyPause(pauseChanged, false)
}

// Update feeds one EAR reading taken at at.
func (t *Trigger) Update(ear float64, at time.Time) Result {
	t.mu.Lock()

	if ear >= t.cfg.Threshold {
		t.state = Open
		t.since = time.Time{}
		pauseChanged := t.setPaused(false)
		t.mu.Unlock()
		t.notifyPause(pauseChanged, false)
		return Result{State: Open}
	}

	var pauseChanged bool
	if t.state == Open {
		t.state = Closing
		t.since = at
		pauseChanged = t.setPaused(true)
	}

	res := Result{State: t.state}
	if t.state == Closing || t.state == Closed {
		res.Closure = at.Sub(t.since)
		switch {
		case res.Closure >= t.cfg.LongBlink:
			t.state = Cooldown
			if t.busy != nil && t.busy() {
				res.Rejected = true
			} else {
				res.Fired = true
			}
		case res.Closure >= t.cfg.ShortBlink:
			t.state = Closed
		}
		res.State = t.state
	}
	t.mu.Unlock()

	t.notifyPause(pauseChanged, true)
	if res.Rejected {
		slog.Debug("long blink ignored, session active")
	}
	if res.Fired {
		slog.Info("long blink trigger", "closure", res.Closure)
		if t.onTrigger != nil {
			t.onTrigger(at)
		}
	}
	return res
}

func (t *Trigger) setPaused(p bool) bool {
	if t.paused == p {
		return false
	}
	t.paused = p
	return true
}

func (t *Trigger) notifyPause(changed, paused bool) {
	if changed && t.onPause != nil {
		t.onPause(paused)
	}
}
