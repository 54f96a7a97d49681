// Package app wires the gaze-to-request pipeline and exposes it to the
// desktop shell.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"

	"go.aimuz.me/iris/archive"
	"go.aimuz.me/iris/blink"
	"go.aimuz.me/iris/clipboard"
	"go.aimuz.me/iris/config"
	"go.aimuz.me/iris/conversation"
	"go.aimuz.me/iris/gaze"
	"go.aimuz.me/iris/hotkey"
	"go.aimuz.me/iris/internal/types"
	"go.aimuz.me/iris/llm"
	"go.aimuz.me/iris/screenshot"
	"go.aimuz.me/iris/stt"
	"go.aimuz.me/iris/vision"
)

// Options configures a Service. Zero values select the system defaults.
type Options struct {
	Version string
	Config  *config.Config // nil loads the user config

	ArchiveDir string // empty uses archive.DefaultDir
	NoArchive  bool

	Launcher vision.Launcher
	Screen   ScreenGrabber
	Focus    FocusReader

	Hotkeys     bool // register global trigger and dismiss keys
	WatchConfig bool // hot-reload thresholds when the config file changes
}

// Service provides application functionality bound to Wails.
// It owns the pipeline; business logic lives in the stage packages.
type Service struct {
	opts Options

	mu  sync.RWMutex
	cfg *config.Config

	store      *archive.Store
	history    *conversation.History
	supervisor *vision.Supervisor
	gaze       *gaze.Processor
	blink      *blink.Trigger
	voice      *stt.Engine
	capture    *Orchestrator
	hotkey     *hotkey.Manager

	// UI references - set via Init
	app    *application.App
	window application.Window

	sinkMu       sync.RWMutex
	sinks        []EmitFunc
	lastResponse string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Service. Call Init or Start afterwards.
func New(opts Options) *Service {
	if opts.Screen == nil {
		opts.Screen = SystemScreen
	}
	if opts.Focus == nil {
		opts.Focus = SystemFocus
	}
	return &Service{opts: opts}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.opts.Version
}

// AddSink registers an additional event consumer, e.g. the overlay hub.
func (s *Service) AddSink(fn EmitFunc) {
	s.sinkMu.Lock()
	s.sinks = append(s.sinks, fn)
	s.sinkMu.Unlock()
}

// Init initializes the service with app and window references and starts
// the pipeline. Must be called after the Wails application is created.
func (s *Service) Init(app *application.App, window application.Window) {
	s.app = app
	s.window = window
	if err := s.Start(context.Background()); err != nil {
		slog.Error("start pipeline", "error", err)
	}
}

// Start builds the pipeline and launches the tracker.
func (s *Service) Start(ctx context.Context) error {
	cfg := s.opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			slog.Error("load config", "error", err)
			loaded = config.Default()
		}
		cfg = loaded
	}
	s.cfg = cfg

	ctx, cancel := context.WithCancel(ctx)
	s.ctx, s.cancel = ctx, cancel

	s.setupArchive()
	s.history = conversation.NewHistory(cfg.History.MaxMessages)

	rec, err := newRecognizer(ctx, cfg)
	if err != nil {
		slog.Warn("speech recognizer unavailable", "recognizer", cfg.Speech.Recognizer, "error", err)
	}
	s.voice = stt.NewEngine(microphone, rec, voiceConfig(cfg))

	s.gaze = gaze.NewProcessor(gazeConfig(cfg), gaze.Handlers{
		Position: func(p types.Point) { s.emit(EventGazePosition, p) },
		Stable:   func(p types.Point) { s.emit(EventGazeStable, p) },
	})

	deps := OrchestratorDeps{
		Screen:    s.opts.Screen,
		Focus:     s.opts.Focus,
		Voice:     s.voice,
		Inference: s.inference,
		Assembler: NewAssembler(s.history),
		Responder: NewResponseHandler(s.history),
		Emit:      s.emit,
		OnBusy:    s.gaze.SetHeavy,
	}
	if s.store != nil {
		deps.Archive = s.store
	}
	s.capture = NewOrchestrator(captureConfig(cfg), deps)

	s.blink = blink.New(blinkConfig(cfg),
		blink.WithGate(s.capture.Busy),
		blink.WithPauseHandler(func(paused bool) {
			s.gaze.SetPaused(paused)
			s.emit(EventBlinkPause, paused)
		}),
		blink.WithTriggerHandler(func(time.Time) {
			s.capture.Trigger(ctx)
		}),
	)

	s.supervisor = vision.New(visionConfig(cfg), s.opts.Launcher,
		vision.WithHealthHandler(s.onHealth),
		vision.WithSampleHandler(func(sample types.GazeSample) {
			s.gaze.Ingest(sample)
			s.blink.Update(sample.EAR, sample.Timestamp)
		}),
	)

	if !screenshot.HasPermission() {
		screenshot.RequestPermission()
		s.emit(EventError, types.ErrorEvent{Kind: types.FaultPermission, Message: screenshot.ErrPermissionDenied.Error()})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.gaze.Run(ctx)
	}()

	if s.opts.Hotkeys {
		s.setupHotkey(ctx, cfg.Hotkey)
	}
	if s.opts.WatchConfig && cfg.Path() != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := cfg.Watch(ctx, s.applyConfig); err != nil {
				slog.Error("watch config", "error", err)
			}
		}()
	}

	if err := s.supervisor.Start(ctx); err != nil {
		return fmt.Errorf("start tracker: %w", err)
	}
	return nil
}

// Shutdown cleans up resources.
func (s *Service) Shutdown() {
	if s.hotkey != nil {
		s.hotkey.Stop()
	}
	if s.capture != nil {
		_ = s.capture.Dismiss()
	}
	if s.voice != nil {
		s.voice.StopListening()
	}
	if s.supervisor != nil {
		if err := s.supervisor.Stop(); err != nil {
			slog.Error("stop tracker", "error", err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.capture != nil {
		s.capture.Wait()
	}
	s.wg.Wait()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("close archive", "error", err)
		}
	}
}

func (s *Service) setupArchive() {
	if s.opts.NoArchive {
		return
	}
	dir := s.opts.ArchiveDir
	if dir == "" {
		d, err := archive.DefaultDir()
		if err != nil {
			slog.Error("get archive dir", "error", err)
			return
		}
		dir = d
	}

	store, err := archive.Open(dir, s.cfg.Capture.ArchiveTTL.Std())
	if err != nil {
		slog.Error("init archive", "error", err)
		return
	}
	s.store = store
	slog.Info("archive initialized", "path", dir)
}

func (s *Service) setupHotkey(ctx context.Context, keys config.HotkeyConfig) {
	var bindings []hotkey.Binding
	if combo, err := hotkey.ParseCombo(keys.Trigger); err == nil {
		bindings = append(bindings, hotkey.Binding{Keys: combo, Action: func() { s.capture.Trigger(ctx) }})
	} else {
		slog.Warn("invalid trigger hotkey", "combo", keys.Trigger, "error", err)
	}
	if combo, err := hotkey.ParseCombo(keys.Dismiss); err == nil {
		bindings = append(bindings, hotkey.Binding{Keys: combo, Action: func() { _ = s.capture.Dismiss() }})
	} else {
		slog.Warn("invalid dismiss hotkey", "combo", keys.Dismiss, "error", err)
	}

	s.hotkey = hotkey.NewManager(bindings...)
	s.hotkey.SetStatusCallback(func(granted bool) {
		s.emit(EventAccessibilityPerm, granted)
		if granted {
			slog.Info("accessibility permission granted")
		} else {
			slog.Warn("accessibility permission denied")
		}
	})

	if err := s.hotkey.Start(); err != nil {
		slog.Error("start hotkey", "error", err)
	}
}

func (s *Service) onHealth(h types.ProcessHealth) {
	s.emit(EventProcessHealth, h)
	switch h.State {
	case types.HealthRecovering:
		s.resetSignal()
	case types.HealthFailed:
		s.emit(EventError, types.ErrorEvent{Kind: types.FaultProcess, Message: h.Reason})
	}
}

// resetSignal drops filter and blink state tied to the previous tracker run.
func (s *Service) resetSignal() {
	s.gaze.Reset()
	s.blink.Reset()
}

// applyConfig hot-reloads thresholds and the recognizer.
func (s *Service) applyConfig(next *config.Config) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = next
	s.mu.Unlock()

	s.blink.SetConfig(blinkConfig(next))
	s.voice.SetConfig(voiceConfig(next))
	s.history.SetMax(next.History.MaxMessages)
	s.capture.SetConfig(captureConfig(next))

	if prev.Speech != next.Speech {
		rec, err := newRecognizer(context.Background(), next)
		if err != nil {
			slog.Error("reload speech recognizer", "error", err)
			return
		}
		s.voice.SetRecognizer(rec)
		slog.Info("speech recognizer changed", "recognizer", rec.Name())
	}
}

func (s *Service) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// inference resolves the active inference profile.
func (s *Service) inference() (llm.Completer, *types.Provider, error) {
	p, err := s.config().ActiveProvider()
	if err != nil {
		return nil, nil, err
	}
	c := llm.NewCompleter(p.Type, p.APIKey, p.BaseURL, p.Model, llm.Options{
		MaxTokens:       p.MaxTokens,
		Temperature:     p.Temperature,
		DisableThinking: p.DisableThinking,
	})
	return c, p, nil
}

// emit is a safe wrapper around app.Event.Emit that also feeds extra sinks.
func (s *Service) emit(name string, data any) {
	if name == EventResponseDone {
		if m, ok := data.(ResponseMessage); ok {
			s.sinkMu.Lock()
			s.lastResponse = m.Content.Text
			s.sinkMu.Unlock()
		}
	}

	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
	if name == EventResponseDone || name == EventResponseFailed {
		s.showWindow()
	}
	s.sinkMu.RLock()
	sinks := s.sinks
	s.sinkMu.RUnlock()
	for _, fn := range sinks {
		fn(name, data)
	}
}

func (s *Service) showWindow() {
	if s.window != nil {
		s.window.Show()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Bound Methods
// ─────────────────────────────────────────────────────────────────────────────

// Trigger starts a capture session as if a long blink occurred.
func (s *Service) Trigger() bool {
	return s.capture.Trigger(s.ctx)
}

// Dismiss cancels the live session.
func (s *Service) Dismiss() error {
	err := s.capture.Dismiss()
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

// ClearHistory closes the overlay conversation.
func (s *Service) ClearHistory() {
	_ = s.Dismiss()
	s.history.Clear()
	slog.Info("history cleared")
}

// GetHistory returns the conversation so far.
func (s *Service) GetHistory() []conversation.Message {
	return s.history.Snapshot()
}

// GetHealth returns the tracker health.
func (s *Service) GetHealth() types.ProcessHealth {
	return s.supervisor.Health()
}

// GetGazeState returns the stability filter and recent movements.
func (s *Service) GetGazeState() gaze.StabilityState {
	return s.gaze.Stability()
}

// ListSessions returns archived sessions, newest first.
func (s *Service) ListSessions(limit int) ([]archive.Record, error) {
	if s.store == nil {
		return nil, errors.New("archive disabled")
	}
	return s.store.List(limit)
}

// CopyLastResponse copies the last response text to the clipboard.
func (s *Service) CopyLastResponse() error {
	s.sinkMu.RLock()
	text := s.lastResponse
	s.sinkMu.RUnlock()
	if err := clipboard.SetText(text); err != nil {
		return fmt.Errorf("copy response: %w", err)
	}
	return nil
}

// GetProfiles returns the configured inference profiles.
func (s *Service) GetProfiles() []config.InferenceProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]config.InferenceProfile(nil), s.cfg.Profiles...)
}

// SetProfileActive switches the inference profile used by later sessions.
func (s *Service) SetProfileActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.SetProfileActive(id)
}

// RestartTracker stops and relaunches the vision process.
func (s *Service) RestartTracker() error {
	if err := s.supervisor.Stop(); err != nil {
		return fmt.Errorf("stop tracker: %w", err)
	}
	s.resetSignal()
	return s.supervisor.Start(s.ctx)
}

// GetAccessibilityPermission returns whether accessibility is enabled.
func (s *Service) GetAccessibilityPermission() bool {
	return hotkey.IsAccessibilityEnabled(false)
}

// GetScreenRecordingPermission returns whether screen recording is permitted.
func (s *Service) GetScreenRecordingPermission() bool {
	return screenshot.HasPermission()
}

// ─────────────────────────────────────────────────────────────────────────────
// Config Mapping
// ─────────────────────────────────────────────────────────────────────────────

func visionConfig(c *config.Config) vision.Config {
	t := c.Tracking
	return vision.Config{
		Command:        t.Command,
		Args:           t.Args,
		HealthInterval: t.HealthInterval.Std(),
		OutputTimeout:  t.OutputTimeout.Std(),
		RestartDelay:   t.RestartDelay.Std(),
		MaxAttempts:    t.MaxAttempts,
	}
}

func gazeConfig(c *config.Config) gaze.Config {
	g := c.Gaze
	return gaze.Config{
		Radius:       g.Radius,
		Dwell:        g.Dwell.Std(),
		Smoothing:    g.Smoothing,
		NormalRate:   g.NormalRate,
		ReducedRate:  g.ReducedRate,
		HeavyCeiling: g.HeavyCeiling.Std(),
	}
}

func blinkConfig(c *config.Config) blink.Config {
	return blink.Config{
		Threshold:  c.Blink.Threshold,
		ShortBlink: c.Blink.ShortBlink.Std(),
		LongBlink:  c.Blink.LongBlink.Std(),
	}
}

func voiceConfig(c *config.Config) stt.VoiceConfig {
	return stt.VoiceConfig{
		SilenceThreshold: c.Voice.SilenceThreshold.Std(),
		PollInterval:     c.Voice.PollInterval.Std(),
	}
}

func captureConfig(c *config.Config) CaptureConfig {
	return CaptureConfig{
		ScreenshotTimeout: c.Capture.ScreenshotTimeout.Std(),
		ListenTimeout:     c.Voice.Timeout.Std(),
		Language:          c.Speech.Language,
		IncludeFocus:      c.Capture.IncludeFocus,
		MaxDimension:      c.Image.MaxDimension,
		JPEGQuality:       c.Image.JPEGQuality,
	}
}
