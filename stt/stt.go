// Package stt provides speech recognition and the voice capture engine that
// turns a spoken question into a finished transcript.
package stt

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotAuthorized is returned when speech or microphone access is denied
	// or the recognizer has no usable credentials.
	ErrNotAuthorized = errors.New("speech recognition not authorized")
	// ErrNotReady is returned when a recognizer still needs setup.
	ErrNotReady = errors.New("speech recognizer not ready")
)

// TranscribeResult represents the result of a batch transcription.
type TranscribeResult struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Segment represents a time-stamped audio segment.
type Segment struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Transcriber converts a complete audio clip to text.
type Transcriber interface {
	// Transcribe converts mono PCM float32 samples to text.
	// language is an ISO 639-1 code, empty for auto-detect.
	Transcribe(ctx context.Context, audio []float32, sampleRate int, language string) (*TranscribeResult, error)
}

// AudioFormat is the PCM layout a recognizer consumes.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// Result is a recognition update. Text is the whole transcript so far, not a
// delta.
type Result struct {
	Text  string
	Final bool
}

// Session is one streaming recognition.
type Session interface {
	// Feed queues samples in the recognizer's AudioFormat. It never blocks.
	Feed(samples []float32)
	// Results delivers transcript updates and is closed when the session ends.
	Results() <-chan Result
	// Err reports why Results was closed. Nil after a clean Close.
	Err() error
	// Close stops recognition and releases resources.
	Close() error
}

// Recognizer creates streaming recognition sessions.
type Recognizer interface {
	// Name returns the recognizer identifier.
	Name() string
	// DisplayName returns the human-readable recognizer name.
	DisplayName() string
	// IsLocal reports whether recognition runs without network calls.
	IsLocal() bool
	// Format returns the audio layout Feed expects.
	Format() AudioFormat
	// Authorize checks that recognition can start, requesting access if the
	// platform needs it.
	Authorize(ctx context.Context) error
	// Start begins a session. language is a BCP 47 tag, empty for auto.
	Start(ctx context.Context, language string) (Session, error)
}

// Registry holds registered recognizers.
type Registry struct {
	recognizers map[string]Recognizer
}

// NewRegistry creates a new recognizer registry.
func NewRegistry() *Registry {
	return &Registry{
		recognizers: make(map[string]Recognizer),
	}
}

// Register adds a recognizer to the registry.
func (r *Registry) Register(rec Recognizer) {
	r.recognizers[rec.Name()] = rec
}

// Get returns a recognizer by name.
func (r *Registry) Get(name string) Recognizer {
	return r.recognizers[name]
}

// Info describes a registered recognizer.
type Info struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	IsLocal     bool   `json:"isLocal"`
}

// List returns all registered recognizers sorted by name.
func (r *Registry) List() []Info {
	result := make([]Info, 0, len(r.recognizers))
	for _, rec := range r.recognizers {
		result = append(result, Info{Name: rec.Name(), DisplayName: rec.DisplayName(), IsLocal: rec.IsLocal()})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
