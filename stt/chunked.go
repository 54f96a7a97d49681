package stt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ChunkedConfig configures a Chunked recognizer.
type ChunkedConfig struct {
	Name        string
	DisplayName string
	Local       bool

	SampleRate   int           // default 16000
	Interval     time.Duration // re-transcription cadence while speech continues, default 1s
	MaxAudio     time.Duration // audio kept per session, default 60s
	VADThreshold float32       // RMS threshold, default 0.01
}

// Chunked adapts a batch Transcriber into a streaming Recognizer: the
// growing utterance is re-transcribed whenever new speech arrived, so each
// result is the full transcript so far.
type Chunked struct {
	cfg ChunkedConfig
	t   Transcriber
}

// NewChunked creates a chunked recognizer around t.
func NewChunked(t Transcriber, cfg ChunkedConfig) *Chunked {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxAudio <= 0 {
		cfg.MaxAudio = time.Minute
	}
	if cfg.VADThreshold <= 0 {
		cfg.VADThreshold = 0.01
	}
	return &Chunked{cfg: cfg, t: t}
}

func (c *Chunked) Name() string        { return c.cfg.Name }
func (c *Chunked) DisplayName() string { return c.cfg.DisplayName }
func (c *Chunked) IsLocal() bool       { return c.cfg.Local }
func (c *Chunked) Format() AudioFormat {
	return AudioFormat{SampleRate: c.cfg.SampleRate, Channels: 1}
}

// Authorize reports ErrNotReady when the transcriber still needs setup.
func (c *Chunked) Authorize(ctx context.Context) error {
	if r, ok := c.t.(interface{ IsReady() bool }); ok && !r.IsReady() {
		return fmt.Errorf("%s: %w", c.cfg.Name, ErrNotReady)
	}
	return nil
}

// Start begins a session.
func (c *Chunked) Start(ctx context.Context, language string) (Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &chunkedSession{
		cfg:      c.cfg,
		t:        c.t,
		language: BaseLanguage(language),
		vad:      NewVAD(c.cfg.VADThreshold, 150*time.Millisecond, c.cfg.Interval, 300*time.Millisecond, 0),
		maxLen:   int(c.cfg.MaxAudio.Seconds() * float64(c.cfg.SampleRate)),
		wake:     make(chan struct{}, 1),
		results:  make(chan Result, 16),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

type chunkedSession struct {
	cfg      ChunkedConfig
	t        Transcriber
	language string
	maxLen   int

	mu      sync.Mutex
	vad     *VAD
	samples []float32
	pending bool // speech arrived since the last transcription

	wake    chan struct{}
	results chan Result
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func (s *chunkedSession) Feed(samples []float32) {
	s.mu.Lock()
	if len(s.samples)+len(samples) <= s.maxLen {
		s.samples = append(s.samples, samples...)
	}
	r := s.vad.Process(samples, time.Now())
	if r.Speech {
		s.pending = true
	}
	s.mu.Unlock()

	if r.ShouldTranscribe {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

func (s *chunkedSession) Results() <-chan Result { return s.results }

func (s *chunkedSession) Err() error {
	<-s.done
	return s.err
}

func (s *chunkedSession) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *chunkedSession) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.results)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}

		s.mu.Lock()
		if !s.pending {
			s.mu.Unlock()
			continue
		}
		s.pending = false
		clip := append([]float32(nil), s.samples...)
		s.mu.Unlock()

		res, err := s.t.Transcribe(ctx, clip, s.cfg.SampleRate, s.language)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.err = fmt.Errorf("transcribe: %w", err)
			slog.Error("transcribe audio", "recognizer", s.cfg.Name, "error", err)
			return
		}

		text := strings.TrimSpace(res.Text)
		if text == "" || text == last {
			continue
		}
		last = text

		select {
		case s.results <- Result{Text: text}:
		case <-ctx.Done():
			return
		}
	}
}
