// Package gaze turns raw tracker samples into a smoothed cursor position and
// "the gaze has settled" events.
package gaze

import (
	"context"
	"sync"
	"time"

	"go.aimuz.me/iris/internal/types"
)

// Config configures the processor.
type Config struct {
	Radius       float64       // stability radius in pixels
	Dwell        time.Duration // time within radius before the gaze counts as stable
	Smoothing    float64       // EMA weight of the newest sample, 0 disables
	NormalRate   int           // position ticks per second
	ReducedRate  int           // ticks per second during heavy processing
	HeavyCeiling time.Duration // max time the reduced rate can stay in effect
}

// Handlers receive processor output. Nil handlers are skipped.
type Handlers struct {
	Position func(types.Point)
	Stable   func(types.Point)
}

// Processor filters gaze samples. Ingest is cheap and never blocks; Run
// publishes positions at the current cadence.
type Processor struct {
	handlers  Handlers
	smoothing float64
	cadence   *Cadence

	mu       sync.Mutex
	filter   *Filter
	smoothed types.Point
	seeded   bool
	dirty    bool
	paused   bool
	accepted uint64
}

// NewProcessor creates a processor.
func NewProcessor(cfg Config, handlers Handlers) *Processor {
	if cfg.Radius <= 0 {
		cfg.Radius = 30
	}
	if cfg.Dwell <= 0 {
		cfg.Dwell = 150 * time.Millisecond
	}
	if cfg.HeavyCeiling <= 0 {
		cfg.HeavyCeiling = 2 * time.Second
	}
	if cfg.Smoothing < 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = 0
	}

	return &Processor{
		handlers:  handlers,
		smoothing: cfg.Smoothing,
		cadence:   NewCadence(cfg.NormalRate, cfg.ReducedRate, cfg.HeavyCeiling),
		filter:    NewFilter(cfg.Radius, cfg.Dwell),
	}
}

// Ingest feeds one sample.
func (p *Processor) Ingest(s types.GazeSample) {
	p.mu.Lock()
	stable := p.filter.Update(s.Point, s.Timestamp)
	anchor := p.filter.Anchor()

	if !p.seeded || p.smoothing == 0 {
		p.smoothed = s.Point
		p.seeded = true
	} else {
		a := p.smoothing
		p.smoothed.X = a*s.Point.X + (1-a)*p.smoothed.X
		p.smoothed.Y = a*s.Point.Y + (1-a)*p.smoothed.Y
	}
	p.dirty = true
	p.accepted++
	p.mu.Unlock()

	if stable && p.handlers.Stable != nil {
		p.handlers.Stable(anchor)
	}
}

// SetPaused freezes published cursor motion. Samples are still accepted.
func (p *Processor) SetPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
}

// SetHeavy hints that downstream work is heavy and positions may be
// published less often.
func (p *Processor) SetHeavy(active bool) {
	p.cadence.SetHeavy(active, time.Now())
}

// Interval returns the current publishing interval.
func (p *Processor) Interval() time.Duration {
	return p.cadence.Interval(time.Now())
}

// Position returns the latest smoothed position.
func (p *Processor) Position() (types.Point, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.smoothed, p.seeded
}

// Accepted returns the number of samples ingested.
func (p *Processor) Accepted() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

// Stability returns a snapshot of the stability filter.
func (p *Processor) Stability() StabilityState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter.State()
}

// Recent returns the latest movements in chronological order.
func (p *Processor) Recent() []Movement {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter.moves.all()
}

// Reset forgets all filter state, e.g. after the tracker restarts.
func (p *Processor) Reset() {
	p.mu.Lock()
	p.filter.Reset()
	p.seeded = false
	p.dirty = false
	p.mu.Unlock()
}

// Run publishes the latest position at the current cadence until ctx is done.
func (p *Processor) Run(ctx context.Context) {
	timer := time.NewTimer(p.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.tick()
			timer.Reset(p.Interval())
		}
	}
}

func (p *Processor) tick() {
	p.mu.Lock()
	if !p.dirty || p.paused {
		p.mu.Unlock()
		return
	}
	pos := p.smoothed
	p.dirty = false
	p.mu.Unlock()

	if p.handlers.Position != nil {
		p.handlers.Position(pos)
	}
}
