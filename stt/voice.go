package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.aimuz.me/iris/audiocapture"
)

// ErrStopped is returned by Listening.Wait when listening was stopped before
// it completed.
var ErrStopped = errors.New("listening stopped")

// CaptureFactory opens a microphone capture in the given format.
type CaptureFactory func(format AudioFormat) (audiocapture.Capturer, error)

// VoiceConfig controls completion of a listening session.
type VoiceConfig struct {
	SilenceThreshold time.Duration // default 2.5s
	PollInterval     time.Duration // default 500ms
}

func (c VoiceConfig) withDefaults() VoiceConfig {
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 2500 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	return c
}

// Reason says which path completed a listening session.
type Reason string

const (
	ReasonSilence Reason = "silence"
	ReasonTimeout Reason = "timeout"
	ReasonError   Reason = "error"
	ReasonEnd     Reason = "end" // recognizer closed its results
)

// Outcome is the terminal result of a listening session.
type Outcome struct {
	Transcript string
	Reason     Reason
	Err        error
}

// ListenOptions configures one listening session. All callbacks run on the
// session's goroutine and must not block.
type ListenOptions struct {
	Language string
	// Timeout completes the session if no speech has been recognized yet.
	// Zero disables it.
	Timeout time.Duration

	OnPartial        func(text string)
	OnSpeechDetected func()
	OnCountdown      func(remaining time.Duration)
	OnComplete       func(Outcome)
}

// Engine runs voice capture sessions: microphone audio is fed to a
// recognizer until silence, timeout, or an error completes the session.
type Engine struct {
	capture CaptureFactory
	cfg     VoiceConfig

	mu         sync.Mutex
	recognizer Recognizer
	active     *Listening
}

// NewEngine creates a voice capture engine.
func NewEngine(capture CaptureFactory, recognizer Recognizer, cfg VoiceConfig) *Engine {
	return &Engine{
		capture:    capture,
		recognizer: recognizer,
		cfg:        cfg.withDefaults(),
	}
}

// SetRecognizer replaces the recognizer used by later sessions.
func (e *Engine) SetRecognizer(r Recognizer) {
	e.mu.Lock()
	e.recognizer = r
	e.mu.Unlock()
}

// SetConfig replaces the completion thresholds used by later sessions.
func (e *Engine) SetConfig(cfg VoiceConfig) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
}

// StartListening begins a session, stopping any session still active.
//
// Authorization is checked first. A denial completes the returned session
// immediately with an empty transcript and an error wrapping
// ErrNotAuthorized. Failures to open the recognizer or the microphone are
// returned as errors and leave no session behind.
func (e *Engine) StartListening(ctx context.Context, opts ListenOptions) (*Listening, error) {
	e.mu.Lock()
	prev := e.active
	rec := e.recognizer
	cfg := e.cfg
	e.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	if rec == nil {
		return nil, fmt.Errorf("start listening: %w", ErrNotReady)
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &Listening{
		cfg:     cfg,
		opts:    opts,
		cancel:  cancel,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if err := rec.Authorize(lctx); err != nil {
		cancel()
		if !errors.Is(err, ErrNotAuthorized) {
			err = fmt.Errorf("%w: %w", ErrNotAuthorized, err)
		}
		slog.Warn("speech recognition not authorized", "recognizer", rec.Name(), "error", err)
		l.resolve(Outcome{Reason: ReasonError, Err: err})
		return l, nil
	}

	sess, err := rec.Start(lctx, opts.Language)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start recognizer: %w", err)
	}
	l.session = sess

	capturer, err := e.capture(rec.Format())
	if err != nil {
		cancel()
		sess.Close()
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	if err := capturer.Start(sess.Feed); err != nil {
		cancel()
		sess.Close()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	l.capturer = capturer

	e.mu.Lock()
	e.active = l
	e.mu.Unlock()

	slog.Info("listening started", "recognizer", rec.Name(), "timeout", opts.Timeout)
	go l.run(lctx)
	return l, nil
}

// StopListening stops the active session without completing it.
func (e *Engine) StopListening() {
	e.mu.Lock()
	l := e.active
	e.active = nil
	e.mu.Unlock()
	if l != nil {
		l.Stop()
	}
}

// Listening is one voice capture session. Its Outcome is produced at most
// once, by whichever completion path gets there first.
type Listening struct {
	cfg  VoiceConfig
	opts ListenOptions

	session  Session
	capturer audiocapture.Capturer
	cancel   context.CancelFunc

	once    sync.Once
	done    chan struct{}
	outcome Outcome

	stopping     atomic.Bool
	stopOnce     sync.Once
	stopped      chan struct{}
	teardownOnce sync.Once
}

// Done is closed when the session completes.
func (l *Listening) Done() <-chan struct{} { return l.done }

// Outcome returns the terminal result. Valid only after Done is closed.
func (l *Listening) Outcome() Outcome {
	<-l.done
	return l.outcome
}

// Wait blocks until the session completes, is stopped, or ctx is done.
func (l *Listening) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-l.done:
		return l.outcome, nil
	default:
	}
	select {
	case <-l.done:
		return l.outcome, nil
	case <-l.stopped:
		select {
		case <-l.done:
			return l.outcome, nil
		default:
		}
		return Outcome{}, ErrStopped
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Stop tears down audio and recognition. It never completes the session.
func (l *Listening) Stop() {
	l.stopping.Store(true)
	l.stopOnce.Do(func() { close(l.stopped) })
	l.cancel()
	l.teardown()
}

// resolve publishes the outcome. Only the first call has any effect; it
// reports whether this call produced the outcome.
func (l *Listening) resolve(o Outcome) bool {
	resolved := false
	l.once.Do(func() {
		l.outcome = o
		close(l.done)
		resolved = true
		if l.opts.OnComplete != nil {
			l.opts.OnComplete(o)
		}
	})
	return resolved
}

func (l *Listening) finish(o Outcome) {
	if l.stopping.Load() {
		return
	}
	if l.resolve(o) {
		slog.Info("listening completed", "reason", o.Reason, "chars", len(o.Transcript))
	}
}

func (l *Listening) teardown() {
	l.teardownOnce.Do(func() {
		if l.capturer != nil {
			if err := l.capturer.Stop(); err != nil {
				slog.Error("stop microphone", "error", err)
			}
		}
		if l.session != nil {
			if err := l.session.Close(); err != nil {
				slog.Error("close recognizer", "error", err)
			}
		}
	})
}

func (l *Listening) run(ctx context.Context) {
	defer l.teardown()
	defer l.cancel()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	var (
		timeoutC <-chan time.Time
		deadline time.Time
	)
	if l.opts.Timeout > 0 {
		timer := time.NewTimer(l.opts.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
		deadline = time.Now().Add(l.opts.Timeout)
	}

	var (
		transcript  string
		lastUpdate  time.Time
		heardSpeech bool
	)
	results := l.session.Results()

	for {
		select {
		case <-ctx.Done():
			l.stopping.Store(true)
			l.stopOnce.Do(func() { close(l.stopped) })
			return

		case r, ok := <-results:
			if !ok {
				if err := l.session.Err(); err != nil {
					l.finish(Outcome{Transcript: transcript, Reason: ReasonError, Err: err})
				} else {
					l.finish(Outcome{Transcript: transcript, Reason: ReasonEnd})
				}
				return
			}
			text := strings.TrimSpace(r.Text)
			if text == "" {
				continue
			}
			if text != transcript {
				transcript = text
				lastUpdate = time.Now()
				if l.opts.OnPartial != nil {
					l.opts.OnPartial(text)
				}
			}
			if !heardSpeech {
				heardSpeech = true
				timeoutC = nil
				if l.opts.OnSpeechDetected != nil {
					l.opts.OnSpeechDetected()
				}
			}

		case now := <-ticker.C:
			if transcript != "" && now.Sub(lastUpdate) >= l.cfg.SilenceThreshold {
				l.finish(Outcome{Transcript: transcript, Reason: ReasonSilence})
				return
			}
			if timeoutC != nil && l.opts.OnCountdown != nil {
				l.opts.OnCountdown(max(0, deadline.Sub(now)))
			}

		case <-timeoutC:
			l.finish(Outcome{Transcript: transcript, Reason: ReasonTimeout})
			return
		}
	}
}
