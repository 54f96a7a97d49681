package app

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/iris/archive"
	"go.aimuz.me/iris/focus"
	"go.aimuz.me/iris/llm"
)

// CaptureSession is one trigger-to-response cycle. The transcript can only
// change until it is finalized; the session ends exactly once.
type CaptureSession struct {
	ID        string
	StartedAt time.Time

	mu         sync.Mutex
	frame      *llm.Image
	focus      *focus.Element
	transcript string
	finalized  bool
	latency    archive.Latency
	listening  interface{ Stop() }
	closed     bool

	endOnce sync.Once
}

func newCaptureSession(now time.Time) *CaptureSession {
	return &CaptureSession{ID: uuid.NewString(), StartedAt: now}
}

// SetFrame stores the screenshot.
func (s *CaptureSession) SetFrame(img llm.Image) {
	s.mu.Lock()
	s.frame = &img
	s.mu.Unlock()
}

// Frame returns the screenshot, if captured.
func (s *CaptureSession) Frame() (llm.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return llm.Image{}, false
	}
	return *s.frame, true
}

// SetFocus stores the focused element.
func (s *CaptureSession) SetFocus(e *focus.Element) {
	s.mu.Lock()
	s.focus = e
	s.mu.Unlock()
}

// Focus returns the focused element, nil when unknown.
func (s *CaptureSession) Focus() *focus.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focus
}

// UpdateTranscript replaces the transcript with a newer cumulative one.
// It reports false once the transcript is finalized.
func (s *CaptureSession) UpdateTranscript(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	s.transcript = strings.TrimSpace(text)
	return true
}

// Finalize fixes the transcript. Only the first call has any effect.
func (s *CaptureSession) Finalize(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	s.transcript = strings.TrimSpace(text)
	s.finalized = true
	return true
}

// Transcript returns the current transcript and whether it is final.
func (s *CaptureSession) Transcript() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript, s.finalized
}

func (s *CaptureSession) setListening(l interface{ Stop() }) {
	s.mu.Lock()
	s.listening = l
	s.mu.Unlock()
}

func (s *CaptureSession) stopListening() {
	s.mu.Lock()
	l := s.listening
	s.listening = nil
	s.mu.Unlock()
	if l != nil {
		l.Stop()
	}
}

// mark records a milestone offset once.
func (s *CaptureSession) mark(field func(*archive.Latency) *time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := field(&s.latency); *d == 0 {
		*d = now.Sub(s.StartedAt)
	}
}

// Latency returns the recorded milestones.
func (s *CaptureSession) Latency() archive.Latency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency
}

// end runs fn if the session has not ended yet.
func (s *CaptureSession) end(fn func()) bool {
	ended := false
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		ended = true
		fn()
	})
	return ended
}

// commit runs fn under the session lock unless the session has ended.
// end waits for a running commit.
func (s *CaptureSession) commit(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

func listeningAt(l *archive.Latency) *time.Duration  { return &l.Listening }
func finalizedAt(l *archive.Latency) *time.Duration  { return &l.Finalized }
func firstTokenAt(l *archive.Latency) *time.Duration { return &l.FirstToken }
func doneAt(l *archive.Latency) *time.Duration       { return &l.Done }
