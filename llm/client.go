// Package llm provides clients for multimodal chat completions.
package llm

import (
	"context"
	"encoding/base64"
	"net/http"

	"go.aimuz.me/iris/internal/types"
)

// Image is an encoded image attached to a message.
type Image struct {
	MIMEType string // "image/jpeg" or "image/png"
	Data     []byte
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data: URL.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64()
}

// Message represents a chat message. Images are only sent on user messages.
type Message struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"-"`
}

// Options configures LLM completion behavior.
type Options struct {
	MaxTokens       int
	Temperature     float64
	DisableThinking bool // For Gemini: set thinkingBudget to 0
}

// StreamDelta is one increment of a streamed completion. The final delta has
// Done set and carries usage; a delta with Err ends the stream.
type StreamDelta struct {
	Text  string
	Done  bool
	Usage types.Usage
	Err   error
}

// Completer performs chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, types.Usage, error)
}

// StreamCompleter performs streamed chat completions.
type StreamCompleter interface {
	Completer
	StreamComplete(ctx context.Context, messages []Message) (<-chan StreamDelta, error)
}

// completerConfig holds all parameters needed by completers.
type completerConfig struct {
	http            *http.Client
	apiKey          string
	baseURL         string
	model           string
	maxTokens       int
	temperature     float64
	disableThinking bool
}

// NewCompleter creates a Completer for the given provider type. All
// returned completers also implement StreamCompleter.
func NewCompleter(apiType, apiKey, baseURL, model string, opts Options) Completer {
	cfg := completerConfig{
		http:            &http.Client{},
		apiKey:          apiKey,
		baseURL:         baseURL,
		model:           model,
		maxTokens:       opts.MaxTokens,
		temperature:     opts.Temperature,
		disableThinking: opts.DisableThinking,
	}

	switch apiType {
	case "gemini":
		return &geminiCompleter{cfg: cfg}
	case "claude":
		return &claudeCompleter{cfg: cfg}
	case "openai-compatible":
		return newOpenAICompleter(cfg, true)
	default:
		return newOpenAICompleter(cfg, false)
	}
}
