package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"go.aimuz.me/iris/archive"
	"go.aimuz.me/iris/internal/types"
	"go.aimuz.me/iris/screenshot"
	"go.aimuz.me/iris/stt"
)

func TestOrchestrator_FullSession(t *testing.T) {
	h := newHarness(t,
		staticScreen(pngBytes(t, 64, 32)),
		&scriptedRecognizer{texts: []string{"how do I", "how do I fix this"}},
		&fakeCompleter{text: "Try one of these:\n1. Restart it\n2. Reinstall it"},
	)

	if !h.o.Trigger(context.Background()) {
		t.Fatal("Trigger() = false on idle orchestrator")
	}
	rec := h.waitEnded(t)

	if rec.Outcome != archive.OutcomeDone || rec.Transcript != "how do I fix this" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Reason != string(stt.ReasonSilence) {
		t.Errorf("reason = %q, want silence", rec.Reason)
	}
	if rec.Latency.Listening <= 0 || rec.Latency.Finalized < rec.Latency.Listening || rec.Latency.Done < rec.Latency.Finalized {
		t.Errorf("latency = %+v", rec.Latency)
	}

	done := h.events.find(EventResponseDone)
	if len(done) != 1 {
		t.Fatalf("response-done events = %d, want 1", len(done))
	}
	msg := done[0].(ResponseMessage)
	if len(msg.Content.Options) != 2 || msg.Transcript != "how do I fix this" {
		t.Errorf("response = %+v", msg)
	}

	hist := h.history.Snapshot()
	if len(hist) != 2 || hist[0].Content != "how do I fix this" || hist[1].Content != msg.Content.Text {
		t.Errorf("history = %+v", hist)
	}

	msgs := h.completer.messages()
	user := msgs[len(msgs)-1]
	if len(user.Images) != 1 || user.Images[0].MIMEType != "image/jpeg" {
		t.Errorf("user message images = %+v", user.Images)
	}

	want := []Phase{PhaseCapturing, PhaseListening, PhaseSpeaking, PhaseThinking, PhaseAnswering, PhaseIdle}
	if got := h.events.phases(); !slices.Equal(got, want) {
		t.Errorf("phases = %v, want %v", got, want)
	}
	if got := h.busy.all(); !slices.Equal(got, []bool{true, false}) {
		t.Errorf("busy transitions = %v", got)
	}
}

func TestOrchestrator_RejectsWhileLive(t *testing.T) {
	h := newHarness(t,
		staticScreen(pngBytes(t, 8, 8)),
		&scriptedRecognizer{},
		&fakeCompleter{},
	)

	if !h.o.Trigger(context.Background()) {
		t.Fatal("first Trigger() = false")
	}
	for range 5 {
		if h.o.Trigger(context.Background()) {
			t.Fatal("Trigger() accepted while a session is live")
		}
	}
	if got := h.rec.starts.Load(); got > 1 {
		t.Errorf("recognizer started %d times", got)
	}
}

func TestOrchestrator_ScreenshotFaults(t *testing.T) {
	tests := []struct {
		name     string
		screen   ScreenGrabber
		wantKind types.FaultKind
	}{
		{
			name: "permission",
			screen: ScreenGrabberFunc(func(context.Context) ([]byte, error) {
				return nil, screenshot.ErrPermissionDenied
			}),
			wantKind: types.FaultPermission,
		},
		{
			name: "tool failure",
			screen: ScreenGrabberFunc(func(context.Context) ([]byte, error) {
				return nil, errors.New("exit status 1")
			}),
			wantKind: types.FaultCapture,
		},
		{
			name: "timeout",
			screen: ScreenGrabberFunc(func(ctx context.Context) ([]byte, error) {
				time.Sleep(time.Second)
				return nil, ctx.Err()
			}),
			wantKind: types.FaultCapture,
		},
		{
			name:     "undecodable image",
			screen:   staticScreen([]byte("not an image")),
			wantKind: types.FaultCapture,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.screen, &scriptedRecognizer{texts: []string{"hello"}}, &fakeCompleter{})

			start := time.Now()
			h.o.Trigger(context.Background())
			rec := h.waitEnded(t)

			if rec.Outcome != archive.OutcomeFailed {
				t.Errorf("outcome = %q, want failed", rec.Outcome)
			}
			errs := h.events.find(EventError)
			if len(errs) != 1 || errs[0].(types.ErrorEvent).Kind != tt.wantKind {
				t.Errorf("error events = %+v, want kind %s", errs, tt.wantKind)
			}
			if h.rec.starts.Load() != 0 {
				t.Error("voice capture started without a frame")
			}
			if time.Since(start) > 900*time.Millisecond {
				t.Error("screenshot timeout not enforced")
			}
		})
	}
}

func TestOrchestrator_DismissDuringListening(t *testing.T) {
	h := newHarness(t,
		staticScreen(pngBytes(t, 8, 8)),
		&scriptedRecognizer{}, // never speaks
		&fakeCompleter{text: "unused"},
	)

	h.o.Trigger(context.Background())
	waitUntil(t, "listening", func() bool { return slices.Contains(h.events.phases(), PhaseListening) })

	if err := h.o.Dismiss(); err != nil {
		t.Fatalf("Dismiss() error = %v", err)
	}
	h.o.Wait()

	recs := h.archive.records()
	if len(recs) != 1 || recs[0].Outcome != archive.OutcomeDismissed {
		t.Fatalf("records = %+v", recs)
	}
	if h.completer.calls.Load() != 0 {
		t.Error("inference called after dismiss")
	}
	if h.o.Busy() {
		t.Error("orchestrator still busy after dismiss")
	}
	if err := h.o.Dismiss(); !errors.Is(err, ErrNoSession) {
		t.Errorf("second Dismiss() error = %v, want ErrNoSession", err)
	}

	// a new session can start right away
	if !h.o.Trigger(context.Background()) {
		t.Error("Trigger() after dismiss = false")
	}
}

func TestOrchestrator_DismissDiscardsInflightResponse(t *testing.T) {
	h := newHarness(t,
		staticScreen(pngBytes(t, 8, 8)),
		&scriptedRecognizer{texts: []string{"what is this"}},
		&fakeCompleter{text: "late answer", block: make(chan struct{})},
	)

	h.o.Trigger(context.Background())
	waitUntil(t, "inference call", func() bool { return h.completer.calls.Load() == 1 })

	h.o.Dismiss()
	close(h.completer.block)
	h.o.Wait()

	if n := len(h.events.find(EventResponseDone)); n != 0 {
		t.Errorf("response-done events = %d after dismiss", n)
	}
	if h.history.Len() != 0 {
		t.Errorf("history len = %d, want 0", h.history.Len())
	}
}

func TestOrchestrator_InferenceFailure(t *testing.T) {
	h := newHarness(t,
		staticScreen(pngBytes(t, 8, 8)),
		&scriptedRecognizer{texts: []string{"summarise this"}},
		&fakeCompleter{err: fmt.Errorf("status 503")},
	)

	h.o.Trigger(context.Background())
	rec := h.waitEnded(t)

	if rec.Outcome != archive.OutcomeFailed || rec.Reason != string(types.FaultTransport) {
		t.Errorf("record = %+v", rec)
	}
	if n := len(h.events.find(EventResponseFailed)); n != 1 {
		t.Errorf("response-failed events = %d, want 1", n)
	}
	if h.history.Len() != 0 {
		t.Error("history modified by a failed request")
	}
}

func TestOrchestrator_NotAuthorized(t *testing.T) {
	h := newHarness(t,
		staticScreen(pngBytes(t, 8, 8)),
		&scriptedRecognizer{authErr: stt.ErrNotAuthorized},
		&fakeCompleter{},
	)

	h.o.Trigger(context.Background())
	rec := h.waitEnded(t)

	if rec.Outcome != archive.OutcomeFailed {
		t.Errorf("outcome = %q", rec.Outcome)
	}
	errs := h.events.find(EventError)
	if len(errs) != 1 || errs[0].(types.ErrorEvent).Kind != types.FaultPermission {
		t.Errorf("error events = %+v", errs)
	}
	if h.completer.calls.Load() != 0 {
		t.Error("inference called without a transcript")
	}
}
