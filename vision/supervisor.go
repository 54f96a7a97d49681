// Package vision supervises the external eye-tracking process and decodes
// the gaze samples it writes to stdout.
package vision

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.aimuz.me/iris/internal/types"
)

// ErrAlreadyStarted is returned by Start while a supervision loop is active.
var ErrAlreadyStarted = errors.New("tracker already started")

// Config configures the supervisor.
type Config struct {
	Command string
	Args    []string

	HealthInterval time.Duration // how often output liveness is checked
	OutputTimeout  time.Duration // silence after which the child counts as stalled
	RestartDelay   time.Duration // fixed backoff between restarts
	StopGrace      time.Duration // interrupt-to-kill grace on Stop
	MaxAttempts    int           // consecutive failed restarts before giving up
}

const (
	defaultHealthInterval = 5 * time.Second
	defaultOutputTimeout  = 10 * time.Second
	defaultRestartDelay   = 2 * time.Second
	defaultStopGrace      = 1200 * time.Millisecond
	defaultMaxAttempts    = 3
)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithHealthHandler sets the single consumer of health transitions.
func WithHealthHandler(fn func(types.ProcessHealth)) Option {
	return func(s *Supervisor) { s.onHealth = fn }
}

// WithSampleHandler sets the consumer of decoded gaze samples. It is called
// from the output reader goroutine and must not block.
func WithSampleHandler(fn func(types.GazeSample)) Option {
	return func(s *Supervisor) { s.onSample = fn }
}

// Supervisor owns the tracker child: it spawns it, watches its output for
// liveness, and restarts it with a fixed backoff after crashes or stalls.
type Supervisor struct {
	cfg      Config
	launcher Launcher

	onHealth func(types.ProcessHealth)
	onSample func(types.GazeSample)

	mu     sync.Mutex
	health types.ProcessHealth
	cancel context.CancelFunc
	done   chan struct{}

	alive atomic.Bool
}

// New creates a supervisor. Zero config values fall back to defaults.
func New(cfg Config, launcher Launcher, opts ...Option) *Supervisor {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.OutputTimeout <= 0 {
		cfg.OutputTimeout = defaultOutputTimeout
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if launcher == nil {
		launcher = ExecLauncher{}
	}

	s := &Supervisor{
		cfg:      cfg,
		launcher: launcher,
		health:   types.ProcessHealth{State: types.HealthIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns the tracker with the configured args followed by args.
func (s *Supervisor) Start(ctx context.Context, args ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
			// previous loop finished (stopped or failed)
		default:
			return ErrAlreadyStarted
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	all := append(append([]string(nil), s.cfg.Args...), args...)
	go s.run(runCtx, all, s.done)

	slog.Info("tracker supervision started", "command", s.cfg.Command, "args", all)
	return nil
}

// Stop terminates the tracker without triggering recovery.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// IsRunning reports whether the tracker child is currently alive.
func (s *Supervisor) IsRunning() bool {
	return s.alive.Load()
}

// Health returns the current health snapshot.
func (s *Supervisor) Health() types.ProcessHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

func (s *Supervisor) setHealth(h types.ProcessHealth) {
	s.mu.Lock()
	s.health = h
	s.mu.Unlock()

	slog.Info("tracker health", "state", h.String())
	if s.onHealth != nil {
		s.onHealth(h)
	}
}

// run is the only goroutine that publishes health transitions.
func (s *Supervisor) run(ctx context.Context, args []string, done chan struct{}) {
	defer close(done)

	s.setHealth(types.ProcessHealth{State: types.HealthStarting})

	failures := 0
	for {
		res := s.runOnce(ctx, args)
		if res.stopped {
			s.setHealth(types.ProcessHealth{State: types.HealthIdle})
			return
		}
		if res.confirmed {
			failures = 0
		}
		failures++

		if failures > s.cfg.MaxAttempts {
			slog.Error("tracker gave up", "attempts", failures-1, "reason", res.reason)
			s.setHealth(types.ProcessHealth{State: types.HealthFailed, Reason: res.reason})
			return
		}

		slog.Warn("tracker failed, restarting", "attempt", failures, "reason", res.reason)
		s.setHealth(types.ProcessHealth{
			State:   types.HealthRecovering,
			Attempt: failures,
			Reason:  res.reason,
		})

		select {
		case <-ctx.Done():
			s.setHealth(types.ProcessHealth{State: types.HealthIdle})
			return
		case <-time.After(s.cfg.RestartDelay):
		}
	}
}

type runResult struct {
	confirmed bool
	stopped   bool
	reason    string
}

// runOnce spawns one child and monitors it until it exits, stalls, or ctx
// is cancelled.
func (s *Supervisor) runOnce(ctx context.Context, args []string) runResult {
	proc, err := s.launcher.Launch(ctx, s.cfg.Command, args)
	if err != nil {
		if ctx.Err() != nil {
			return runResult{stopped: true}
		}
		return runResult{reason: fmt.Sprintf("launch: %v", err)}
	}

	s.alive.Store(true)
	defer s.alive.Store(false)

	out := &outputState{confirmCh: make(chan struct{}, 1)}
	out.touch(time.Now())

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readOutput(proc, out)
	}()

	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	confirmed := false
	confirm := func() {
		if !confirmed {
			confirmed = true
			s.setHealth(types.ProcessHealth{State: types.HealthRunning})
		}
	}

	for {
		select {
		case <-ctx.Done():
			if err := proc.Terminate(s.cfg.StopGrace); err != nil {
				slog.Warn("terminate tracker", "error", err)
			}
			<-proc.Done()
			return runResult{confirmed: confirmed, stopped: true}

		case <-out.confirmCh:
			confirm()

		case <-proc.Done():
			waitReader(readDone)
			select {
			case <-out.confirmCh:
				confirm()
			default:
			}
			return runResult{confirmed: confirmed, reason: out.exitReason(proc.Err())}

		case now := <-ticker.C:
			if silent := now.Sub(out.last()); silent >= s.cfg.OutputTimeout {
				slog.Warn("tracker stalled, killing", "silent", silent)
				if err := proc.Kill(); err != nil {
					slog.Warn("kill stalled tracker", "error", err)
				}
				<-proc.Done()
				return runResult{
					confirmed: confirmed,
					reason:    fmt.Sprintf("stalled: no output for %s", silent.Round(time.Millisecond)),
				}
			}
		}
	}
}

func waitReader(done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func (s *Supervisor) readOutput(proc Process, out *outputState) {
	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)

	for scanner.Scan() {
		now := time.Now()
		out.touch(now)

		rec, err := ParseRecord(scanner.Bytes(), now)
		if err != nil {
			slog.Debug("drop tracker line", "error", err)
			continue
		}

		switch rec.Kind {
		case RecordStatus:
			slog.Info("tracker status", "status", rec.Status)
			if rec.Status == StatusReady {
				out.confirm()
			}
		case RecordSample:
			out.confirm()
			if s.onSample != nil {
				s.onSample(rec.Sample)
			}
		case RecordError:
			slog.Warn("tracker reported error", "error", rec.Error)
			out.setError(rec.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Debug("tracker output closed", "error", err)
	}
}

// outputState is shared between the reader goroutine and the monitor loop.
type outputState struct {
	lastOutput atomic.Int64
	confirmed  atomic.Bool
	confirmCh  chan struct{}

	mu      sync.Mutex
	lastErr string
}

func (o *outputState) touch(t time.Time) { o.lastOutput.Store(t.UnixNano()) }
func (o *outputState) last() time.Time   { return time.Unix(0, o.lastOutput.Load()) }

func (o *outputState) confirm() {
	if o.confirmed.CompareAndSwap(false, true) {
		o.confirmCh <- struct{}{}
	}
}

func (o *outputState) setError(msg string) {
	o.mu.Lock()
	o.lastErr = msg
	o.mu.Unlock()
}

func (o *outputState) exitReason(err error) string {
	o.mu.Lock()
	reported := o.lastErr
	o.mu.Unlock()

	switch {
	case reported != "" && err != nil:
		return fmt.Sprintf("exited: %v (%s)", err, reported)
	case reported != "":
		return "exited: " + reported
	case err != nil:
		return fmt.Sprintf("exited: %v", err)
	default:
		return "exited unexpectedly"
	}
}
