// Package realtime recognizes speech through the OpenAI Realtime
// transcription API over WebRTC.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.aimuz.me/iris/stt"
)

// Config configures the realtime recognizer.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Prompt    string
	Eagerness Eagerness
}

// Recognizer implements stt.Recognizer.
type Recognizer struct {
	cfg Config
}

var _ stt.Recognizer = (*Recognizer)(nil)

// New creates a realtime recognizer.
func New(cfg Config) *Recognizer {
	return &Recognizer{cfg: cfg}
}

func (r *Recognizer) Name() string        { return "openai-realtime" }
func (r *Recognizer) DisplayName() string { return "OpenAI Realtime" }
func (r *Recognizer) IsLocal() bool       { return false }

// Format is 48kHz stereo, the native Opus rate.
func (r *Recognizer) Format() stt.AudioFormat {
	return stt.AudioFormat{SampleRate: sampleRate, Channels: channels}
}

// Authorize requires an API key.
func (r *Recognizer) Authorize(ctx context.Context) error {
	if r.cfg.APIKey == "" {
		return fmt.Errorf("openai realtime: %w", stt.ErrNotAuthorized)
	}
	return nil
}

// Start connects a new transcription session.
func (r *Recognizer) Start(ctx context.Context, language string) (stt.Session, error) {
	client := NewClient(SessionConfig{
		APIKey:    r.cfg.APIKey,
		BaseURL:   r.cfg.BaseURL,
		Model:     r.cfg.Model,
		Prompt:    r.cfg.Prompt,
		Eagerness: r.cfg.Eagerness,
		Language:  stt.BaseLanguage(language),
	})
	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect realtime: %w", err)
	}
	return newSession(ctx, client), nil
}

// transport is the part of Client a session needs.
type transport interface {
	SendAudio(samples []float32) error
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

type session struct {
	conn    transport
	results chan stt.Result
	cancel  context.CancelFunc
	done    chan struct{}
	err     error

	closeOnce sync.Once
}

func newSession(ctx context.Context, conn transport) *session {
	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		conn:    conn,
		results: make(chan stt.Result, 16),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *session) Feed(samples []float32) {
	if err := s.conn.SendAudio(samples); err != nil {
		slog.Debug("send realtime audio", "error", err)
	}
}

func (s *session) Results() <-chan stt.Result { return s.results }

func (s *session) Err() error {
	<-s.done
	return s.err
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.conn.Close()
		<-s.done
	})
	return err
}

func (s *session) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.results)

	var t transcript
	events := s.conn.Events()
	for {
		var changed bool
		select {
		case <-ctx.Done():
			return
		case err := <-s.conn.Errors():
			s.err = err
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case DeltaEvent:
				changed = t.delta(e.ItemID, e.Delta)
			case CompletedEvent:
				changed = t.complete(e.ItemID, e.Transcript)
			case SpeechStartedEvent:
				t.open(e.ItemID)
			case FailedEvent:
				slog.Warn("realtime item failed", "item", e.ItemID, "error", e.Error)
			case ErrorEvent:
				s.err = e.Error
				return
			}
		}
		if !changed {
			continue
		}
		select {
		case s.results <- stt.Result{Text: t.String(), Final: t.final()}:
		case <-ctx.Done():
			return
		}
	}
}

// transcript assembles per-item text into one cumulative transcript in
// speech order.
type transcript struct {
	order []string
	items map[string]*item
}

type item struct {
	text string
	done bool
}

func (t *transcript) open(id string) *item {
	if t.items == nil {
		t.items = make(map[string]*item)
	}
	it, ok := t.items[id]
	if !ok {
		it = &item{}
		t.items[id] = it
		t.order = append(t.order, id)
	}
	return it
}

func (t *transcript) delta(id, text string) bool {
	it := t.open(id)
	if it.done || text == "" {
		return false
	}
	it.text += text
	return true
}

func (t *transcript) complete(id, text string) bool {
	it := t.open(id)
	changed := !it.done || it.text != text
	it.text = text
	it.done = true
	return changed
}

func (t *transcript) final() bool {
	for _, it := range t.items {
		if !it.done {
			return false
		}
	}
	return len(t.items) > 0
}

func (t *transcript) String() string {
	parts := make([]string, 0, len(t.order))
	for _, id := range t.order {
		if s := strings.TrimSpace(t.items[id].text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
