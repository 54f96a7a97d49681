package app

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.aimuz.me/iris/archive"
	"go.aimuz.me/iris/audiocapture"
	"go.aimuz.me/iris/conversation"
	"go.aimuz.me/iris/internal/types"
	"go.aimuz.me/iris/llm"
	"go.aimuz.me/iris/stt"
)

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	names  []string
	events []any
}

func (r *recorder) emit(name string, data any) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.events = append(r.events, data)
	r.mu.Unlock()
}

func (r *recorder) find(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for i, n := range r.names {
		if n == name {
			out = append(out, r.events[i])
		}
	}
	return out
}

func (r *recorder) phases() []Phase {
	var out []Phase
	for _, e := range r.find(EventSessionState) {
		out = append(out, e.(SessionState).Phase)
	}
	return out
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// scriptedRecognizer delivers fixed cumulative transcripts right after
// Start and then stays open.
type scriptedRecognizer struct {
	texts   []string
	authErr error
	starts  atomic.Int32
}

func (r *scriptedRecognizer) Name() string            { return "scripted" }
func (r *scriptedRecognizer) DisplayName() string     { return "Scripted" }
func (r *scriptedRecognizer) IsLocal() bool           { return true }
func (r *scriptedRecognizer) Format() stt.AudioFormat { return stt.AudioFormat{SampleRate: 16000, Channels: 1} }

func (r *scriptedRecognizer) Authorize(context.Context) error { return r.authErr }

func (r *scriptedRecognizer) Start(ctx context.Context, language string) (stt.Session, error) {
	r.starts.Add(1)
	s := &scriptedSession{results: make(chan stt.Result, len(r.texts))}
	for _, text := range r.texts {
		s.results <- stt.Result{Text: text}
	}
	return s, nil
}

type scriptedSession struct {
	results chan stt.Result
}

func (s *scriptedSession) Feed([]float32)             {}
func (s *scriptedSession) Results() <-chan stt.Result { return s.results }
func (s *scriptedSession) Err() error                 { return nil }
func (s *scriptedSession) Close() error               { return nil }

type nopCapturer struct{}

func (nopCapturer) Start(audiocapture.AudioHandler) error { return nil }
func (nopCapturer) Stop() error                           { return nil }

func newTestEngine(rec stt.Recognizer) *stt.Engine {
	return stt.NewEngine(
		func(stt.AudioFormat) (audiocapture.Capturer, error) { return nopCapturer{}, nil },
		rec,
		stt.VoiceConfig{SilenceThreshold: 80 * time.Millisecond, PollInterval: 20 * time.Millisecond},
	)
}

// fakeCompleter implements llm.Completer. With block set it waits for the
// channel or ctx.
type fakeCompleter struct {
	text  string
	err   error
	block chan struct{}
	calls atomic.Int32
	last  []llm.Message
	mu    sync.Mutex
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []llm.Message) (string, types.Usage, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = msgs
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", types.Usage{}, ctx.Err()
		}
	}
	return f.text, types.Usage{TotalTokens: 7}, f.err
}

func (f *fakeCompleter) messages() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type memArchive struct {
	mu   sync.Mutex
	recs []archive.Record
}

func (m *memArchive) Put(rec archive.Record) error {
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	return nil
}

func (m *memArchive) records() []archive.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]archive.Record(nil), m.recs...)
}

type harness struct {
	o         *Orchestrator
	events    *recorder
	archive   *memArchive
	history   *conversation.History
	completer *fakeCompleter
	rec       *scriptedRecognizer
	busy      *busyLog
}

type busyLog struct {
	mu     sync.Mutex
	states []bool
}

func (b *busyLog) set(v bool) {
	b.mu.Lock()
	b.states = append(b.states, v)
	b.mu.Unlock()
}

func (b *busyLog) all() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bool(nil), b.states...)
}

func newHarness(t *testing.T, screen ScreenGrabber, rec *scriptedRecognizer, completer *fakeCompleter) *harness {
	t.Helper()
	h := &harness{
		events:    &recorder{},
		archive:   &memArchive{},
		history:   conversation.NewHistory(5),
		completer: completer,
		rec:       rec,
		busy:      &busyLog{},
	}
	h.o = NewOrchestrator(CaptureConfig{ScreenshotTimeout: 200 * time.Millisecond}, OrchestratorDeps{
		Screen: screen,
		Voice:  newTestEngine(rec),
		Inference: func() (llm.Completer, *types.Provider, error) {
			return completer, &types.Provider{Model: "test"}, nil
		},
		Assembler: NewAssembler(h.history),
		Responder: NewResponseHandler(h.history),
		Archive:   h.archive,
		Emit:      h.events.emit,
		OnBusy:    h.busy.set,
	})
	t.Cleanup(func() {
		_ = h.o.Dismiss()
		h.o.Wait()
	})
	return h
}

func (h *harness) waitEnded(t *testing.T) archive.Record {
	t.Helper()
	waitUntil(t, "session end", func() bool { return len(h.archive.records()) > 0 && !h.o.Busy() })
	return h.archive.records()[0]
}

func staticScreen(data []byte) ScreenGrabber {
	return ScreenGrabberFunc(func(context.Context) ([]byte, error) { return data, nil })
}
