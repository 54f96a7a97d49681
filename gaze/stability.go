package gaze

import (
	"time"

	"go.aimuz.me/iris/internal/types"
)

// StabilityState is a snapshot of the stability filter.
type StabilityState struct {
	Anchor       types.Point   `json:"anchor"`
	LastAccepted types.Point   `json:"lastAccepted"`
	WindowStart  time.Time     `json:"windowStart"`
	Stable       time.Duration `json:"stable"`
	Fired        bool          `json:"fired"`
	Recent       []Movement    `json:"recent"`
}

// Filter decides when the gaze has settled. A sample within radius of the
// last accepted sample accumulates dwell time; a consecutive displacement
// beyond radius restarts the window at that sample. The anchor is the first
// point of the window and is only reported.
type Filter struct {
	radius float64
	dwell  time.Duration

	anchor      types.Point
	last        types.Point
	hasAnchor   bool
	windowStart time.Time
	lastAt      time.Time
	stable      time.Duration
	fired       bool

	moves movementRing
}

// NewFilter creates a stability filter.
func NewFilter(radius float64, dwell time.Duration) *Filter {
	return &Filter{radius: radius, dwell: dwell}
}

// Update feeds one sample. It reports true exactly once per window, when the
// accumulated stable duration first reaches the dwell time.
func (f *Filter) Update(p types.Point, at time.Time) bool {
	if !f.hasAnchor {
		f.restart(p, at)
		return false
	}

	d := p.Distance(f.last)
	f.moves.push(Movement{At: at, Displacement: d})

	if d > f.radius {
		f.restart(p, at)
		return false
	}

	f.last = p

	// Out-of-order frames add nothing.
	if at.After(f.lastAt) {
		f.stable += at.Sub(f.lastAt)
		f.lastAt = at
	}

	if !f.fired && f.stable >= f.dwell {
		f.fired = true
		return true
	}
	return false
}

func (f *Filter) restart(p types.Point, at time.Time) {
	f.anchor = p
	f.last = p
	f.hasAnchor = true
	f.windowStart = at
	f.lastAt = at
	f.stable = 0
	f.fired = false
}

// Anchor returns the point the current window is measured from.
func (f *Filter) Anchor() types.Point {
	return f.anchor
}

// State returns a snapshot of the filter.
func (f *Filter) State() StabilityState {
	return StabilityState{
		Anchor:       f.anchor,
		LastAccepted: f.last,
		WindowStart:  f.windowStart,
		Stable:       f.stable,
		Fired:        f.fired,
		Recent:       f.moves.all(),
	}
}

// Reset forgets the anchor and recent movements.
func (f *Filter) Reset() {
	*f = Filter{radius: f.radius, dwell: f.dwell}
}
