package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/iris/archive"
	"go.aimuz.me/iris/focus"
	"go.aimuz.me/iris/internal/types"
	"go.aimuz.me/iris/screenshot"
	"go.aimuz.me/iris/stt"
)

// ErrNoSession is returned when an action needs a live session.
var ErrNoSession = errors.New("no live capture session")

// ScreenGrabber captures the screen as encoded image bytes.
type ScreenGrabber interface {
	Grab(ctx context.Context) ([]byte, error)
}

// FocusReader reads the focused UI element.
type FocusReader interface {
	Read(ctx context.Context) (*focus.Element, error)
}

// Listener starts voice capture sessions.
type Listener interface {
	StartListening(ctx context.Context, opts stt.ListenOptions) (*stt.Listening, error)
}

// Archiver stores finished sessions.
type Archiver interface {
	Put(rec archive.Record) error
}

// ScreenGrabberFunc adapts a function to ScreenGrabber.
type ScreenGrabberFunc func(ctx context.Context) ([]byte, error)

func (f ScreenGrabberFunc) Grab(ctx context.Context) ([]byte, error) { return f(ctx) }

// FocusReaderFunc adapts a function to FocusReader.
type FocusReaderFunc func(ctx context.Context) (*focus.Element, error)

func (f FocusReaderFunc) Read(ctx context.Context) (*focus.Element, error) { return f(ctx) }

// SystemScreen grabs the screen with the screenshot package.
var SystemScreen ScreenGrabber = ScreenGrabberFunc(screenshot.Capture)

// SystemFocus reads the focused element with the focus package.
var SystemFocus FocusReader = FocusReaderFunc(focus.Read)

// CaptureConfig configures the orchestrator.
type CaptureConfig struct {
	ScreenshotTimeout time.Duration
	ListenTimeout     time.Duration // no-speech timeout, zero disables
	Language          string
	IncludeFocus      bool
	MaxDimension      int
	JPEGQuality       int
}

// Orchestrator runs capture sessions: screenshot, voice capture, request
// assembly and response handling. At most one session is live.
type Orchestrator struct {
	screen    ScreenGrabber
	focus     FocusReader
	voice     Listener
	inference Inference
	assembler *Assembler
	responder *ResponseHandler
	archive   Archiver
	emit      EmitFunc
	onBusy    func(bool)

	mu     sync.Mutex
	cfg    CaptureConfig
	live   *CaptureSession
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OrchestratorDeps are the collaborators of an Orchestrator. Focus,
// Archive and OnBusy are optional.
type OrchestratorDeps struct {
	Screen    ScreenGrabber
	Focus     FocusReader
	Voice     Listener
	Inference Inference
	Assembler *Assembler
	Responder *ResponseHandler
	Archive   Archiver
	Emit      EmitFunc
	OnBusy    func(busy bool)
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg CaptureConfig, deps OrchestratorDeps) *Orchestrator {
	if deps.Emit == nil {
		deps.Emit = func(string, any) {}
	}
	return &Orchestrator{
		cfg:       withCaptureDefaults(cfg),
		screen:    deps.Screen,
		focus:     deps.Focus,
		voice:     deps.Voice,
		inference: deps.Inference,
		assembler: deps.Assembler,
		responder: deps.Responder,
		archive:   deps.Archive,
		emit:      deps.Emit,
		onBusy:    deps.OnBusy,
	}
}

func withCaptureDefaults(cfg CaptureConfig) CaptureConfig {
	if cfg.ScreenshotTimeout <= 0 {
		cfg.ScreenshotTimeout = 5 * time.Second
	}
	return cfg
}

// SetConfig replaces the configuration used by later sessions.
func (o *Orchestrator) SetConfig(cfg CaptureConfig) {
	o.mu.Lock()
	o.cfg = withCaptureDefaults(cfg)
	o.mu.Unlock()
}

// Busy reports whether a session is live.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.live != nil
}

// Current returns the live session id.
func (o *Orchestrator) Current() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.live == nil {
		return "", false
	}
	return o.live.ID, true
}

// Trigger starts a session. It returns false without side effects when a
// session is already live. The session runs on its own goroutine.
func (o *Orchestrator) Trigger(ctx context.Context) bool {
	o.mu.Lock()
	if o.live != nil {
		id := o.live.ID
		o.mu.Unlock()
		slog.Debug("trigger rejected", "live", id)
		return false
	}
	sess := newCaptureSession(time.Now())
	sctx, cancel := context.WithCancel(ctx)
	o.live = sess
	o.cancel = cancel
	cfg := o.cfg
	o.wg.Add(1)
	o.mu.Unlock()

	slog.Info("capture triggered", "session", sess.ID)
	o.setBusy(true)
	o.publishState(sess, PhaseCapturing, "")

	go func() {
		defer o.wg.Done()
		o.run(sctx, sess, cfg)
	}()
	return true
}

// Dismiss cancels the live session: voice capture, the inference call and
// any pending timers. Results still in flight are discarded.
func (o *Orchestrator) Dismiss() error {
	o.mu.Lock()
	sess := o.live
	cancel := o.cancel
	o.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	sess.stopListening()
	cancel()
	o.end(sess, archive.OutcomeDismissed, "dismissed", nil)
	slog.Info("capture dismissed", "session", sess.ID)
	return nil
}

// Wait blocks until all session goroutines have returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, sess *CaptureSession, cfg CaptureConfig) {
	data, err := o.grab(ctx, cfg.ScreenshotTimeout)
	if err != nil {
		if ctx.Err() != nil {
			o.end(sess, archive.OutcomeAborted, "cancelled", nil)
			return
		}
		kind := types.FaultCapture
		if errors.Is(err, screenshot.ErrPermissionDenied) {
			kind = types.FaultPermission
		}
		o.fail(sess, kind, err)
		return
	}

	frame, err := encodeFrame(data, cfg.MaxDimension, cfg.JPEGQuality)
	if err != nil {
		o.fail(sess, types.FaultCapture, err)
		return
	}
	sess.SetFrame(frame)

	if cfg.IncludeFocus && o.focus != nil {
		fctx, cancel := context.WithTimeout(ctx, cfg.ScreenshotTimeout)
		el, err := o.focus.Read(fctx)
		cancel()
		if err != nil {
			slog.Debug("read focused element", "error", err)
		} else {
			sess.SetFocus(el)
		}
	}

	transcript, reason, ok := o.listen(ctx, sess, cfg)
	if !ok {
		return
	}
	if !sess.Finalize(transcript) {
		return
	}
	sess.mark(finalizedAt, time.Now())
	if transcript == "" {
		o.end(sess, archive.OutcomeDismissed, "no speech", nil)
		return
	}

	o.publishState(sess, PhaseThinking, string(reason))
	resp, err := o.respond(ctx, sess)
	if err != nil {
		if ctx.Err() != nil {
			o.end(sess, archive.OutcomeAborted, "cancelled", nil)
			return
		}
		o.fail(sess, types.FaultTransport, err)
		return
	}

	sess.mark(doneAt, time.Now())
	o.end(sess, archive.OutcomeDone, string(reason), func(rec *archive.Record) {
		rec.Response = resp.Text
		rec.Usage = resp.Usage
	})
}

// grab runs the screen grabber on a worker goroutine bounded by timeout.
func (o *Orchestrator) grab(ctx context.Context, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := o.screen.Grab(ctx)
		ch <- result{data, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("capture screen: %w", r.err)
		}
		return r.data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("capture screen: %w", ctx.Err())
	}
}

// listen runs voice capture and returns the final transcript. It reports
// false when the session already ended.
func (o *Orchestrator) listen(ctx context.Context, sess *CaptureSession, cfg CaptureConfig) (string, stt.Reason, bool) {
	if ctx.Err() != nil {
		o.end(sess, archive.OutcomeAborted, "cancelled", nil)
		return "", "", false
	}
	o.publishState(sess, PhaseListening, "")

	l, err := o.voice.StartListening(ctx, stt.ListenOptions{
		Language: cfg.Language,
		Timeout:  cfg.ListenTimeout,
		OnPartial: func(text string) {
			if sess.UpdateTranscript(text) {
				o.emitFor(sess, EventTranscriptPartial, TranscriptPartial{SessionID: sess.ID, Text: text})
			}
		},
		OnSpeechDetected: func() {
			o.publishState(sess, PhaseSpeaking, "")
		},
		OnCountdown: func(remaining time.Duration) {
			o.emitFor(sess, EventCountdown, Countdown{SessionID: sess.ID, RemainingMS: remaining.Milliseconds()})
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			o.end(sess, archive.OutcomeAborted, "cancelled", nil)
			return "", "", false
		}
		o.fail(sess, types.FaultCapture, err)
		return "", "", false
	}
	sess.setListening(l)
	sess.mark(listeningAt, time.Now())

	outcome, err := l.Wait(ctx)
	sess.setListening(nil)
	if err != nil {
		l.Stop()
		o.end(sess, archive.OutcomeAborted, "cancelled", nil)
		return "", "", false
	}

	if outcome.Err != nil {
		if errors.Is(outcome.Err, stt.ErrNotAuthorized) {
			o.fail(sess, types.FaultPermission, outcome.Err)
			return "", "", false
		}
		if outcome.Transcript == "" {
			o.fail(sess, types.FaultTransport, outcome.Err)
			return "", "", false
		}
		slog.Warn("recognizer failed, using partial transcript", "session", sess.ID, "error", outcome.Err)
	}
	return outcome.Transcript, outcome.Reason, true
}

func (o *Orchestrator) respond(ctx context.Context, sess *CaptureSession) (Response, error) {
	completer, provider, err := o.inference()
	if err != nil {
		return Response{}, fmt.Errorf("resolve provider: %w", err)
	}

	msgs := o.assembler.Build(sess, provider.SystemPrompt)
	stream, err := invoke(ctx, completer, msgs)
	if err != nil {
		return Response{}, fmt.Errorf("request completion: %w", err)
	}

	emit := func(name string, data any) { o.emitFor(sess, name, data) }
	return o.responder.Handle(ctx, sess, stream, emit, func() {
		sess.mark(firstTokenAt, time.Now())
		o.publishState(sess, PhaseAnswering, "")
	})
}

func (o *Orchestrator) fail(sess *CaptureSession, kind types.FaultKind, err error) {
	o.end(sess, archive.OutcomeFailed, string(kind), func(rec *archive.Record) {
		rec.Error = err.Error()
	})
}

// end finishes sess once: it clears the live slot, archives the record and
// publishes the final state. Faults are published before the idle state.
func (o *Orchestrator) end(sess *CaptureSession, outcome, reason string, fill func(*archive.Record)) {
	var live bool
	sess.end(func() {
		o.mu.Lock()
		live = o.live == sess
		if live {
			o.cancel()
			o.live = nil
			o.cancel = nil
		}
		o.mu.Unlock()

		transcript, _ := sess.Transcript()
		rec := archive.Record{
			ID:         sess.ID,
			StartedAt:  sess.StartedAt,
			Focus:      sess.Focus().Context(),
			Transcript: transcript,
			Reason:     reason,
			Outcome:    outcome,
			Latency:    sess.Latency(),
		}
		if fill != nil {
			fill(&rec)
		}

		if outcome == archive.OutcomeFailed {
			slog.Error("capture failed", "session", sess.ID, "kind", reason, "error", rec.Error)
			o.emit(EventError, types.ErrorEvent{Kind: types.FaultKind(reason), Message: rec.Error, SessionID: sess.ID})
		}
		o.emit(EventSessionState, SessionState{ID: sess.ID, Phase: PhaseIdle, Reason: reason})

		if o.archive != nil {
			if err := o.archive.Put(rec); err != nil {
				slog.Error("archive session", "error", err)
			}
		}
	})
	if live {
		o.setBusy(false)
	}
}

func (o *Orchestrator) publishState(sess *CaptureSession, phase Phase, reason string) {
	o.emitFor(sess, EventSessionState, SessionState{ID: sess.ID, Phase: phase, Reason: reason})
}

// emitFor publishes only while sess is the live session.
func (o *Orchestrator) emitFor(sess *CaptureSession, name string, data any) {
	o.mu.Lock()
	live := o.live == sess
	o.mu.Unlock()
	if live {
		o.emit(name, data)
	}
}

func (o *Orchestrator) setBusy(busy bool) {
	if o.onBusy != nil {
		o.onBusy(busy)
	}
}
