package gaze

import (
	"sync"
	"time"
)

// Cadence picks the position publishing rate. Heavy downstream work lowers
// it; the reduction lapses after a ceiling so a lost "done" hint can't leave
// the cursor sluggish.
type Cadence struct {
	mu      sync.Mutex
	normal  time.Duration
	reduced time.Duration
	ceiling time.Duration

	heavy      bool
	heavySince time.Time
}

// NewCadence creates a cadence controller from rates in ticks per second.
func NewCadence(normalRate, reducedRate int, ceiling time.Duration) *Cadence {
	if normalRate <= 0 {
		normalRate = 60
	}
	if reducedRate <= 0 || reducedRate > normalRate {
		reducedRate = normalRate
	}
	return &Cadence{
		normal:  time.Second / time.Duration(normalRate),
		reduced: time.Second / time.Duration(reducedRate),
		ceiling: ceiling,
	}
}

// SetHeavy records the heavy-processing hint.
func (c *Cadence) SetHeavy(active bool, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if active && !c.heavy {
		c.heavySince = now
	}
	c.heavy = active
}

// Interval returns the tick interval in effect at now.
func (c *Cadence) Interval(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.heavy {
		return c.normal
	}
	if c.ceiling > 0 && now.Sub(c.heavySince) >= c.ceiling {
		c.heavy = false
		return c.normal
	}
	return c.reduced
}

// Reduced reports whether the reduced rate is in effect at now.
func (c *Cadence) Reduced(now time.Time) bool {
	return c.Interval(now) != c.normal
}
