package app

import (
	"context"
	"strings"

	"go.aimuz.me/iris/conversation"
	"go.aimuz.me/iris/internal/types"
	"go.aimuz.me/iris/langdetect"
	"go.aimuz.me/iris/llm"
)

const defaultSystemPrompt = `You are Iris, an assistant that can see the user's screen.
The user looked at something on screen and asked a question out loud.
Answer briefly, using the screenshot as context.
When there are several ways to proceed, list them as numbered options.
Put commands and code in fenced code blocks.`

// Inference resolves the completer and provider for the next request.
type Inference func() (llm.Completer, *types.Provider, error)

// Assembler builds the multimodal request for a finalized session.
type Assembler struct {
	history *conversation.History
}

// NewAssembler creates an assembler reading from history.
func NewAssembler(history *conversation.History) *Assembler {
	return &Assembler{history: history}
}

// Build returns the system prompt, the history window, and one user message
// carrying the screenshot, the focused element and the transcript.
func (a *Assembler) Build(sess *CaptureSession, systemPrompt string) []llm.Message {
	transcript, _ := sess.Transcript()

	system := strings.TrimSpace(systemPrompt)
	if system == "" {
		system = defaultSystemPrompt
	}
	if hint := langdetect.ReplyHint(transcript); hint != "" {
		system += "\n\n" + hint
	}

	history := a.history.Snapshot()
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: system})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}

	var parts []string
	if fc := sess.Focus().Context(); fc != "" {
		parts = append(parts, fc)
	}
	if transcript != "" {
		parts = append(parts, transcript)
	}
	user := llm.Message{Role: "user", Content: strings.Join(parts, "\n\n")}
	if frame, ok := sess.Frame(); ok {
		user.Images = []llm.Image{frame}
	}
	return append(msgs, user)
}

// invoke starts the request, streaming when the completer supports it. A
// plain completer is adapted to a stream of one delta.
func invoke(ctx context.Context, c llm.Completer, msgs []llm.Message) (<-chan llm.StreamDelta, error) {
	if sc, ok := c.(llm.StreamCompleter); ok {
		return sc.StreamComplete(ctx, msgs)
	}

	ch := make(chan llm.StreamDelta, 2)
	go func() {
		defer close(ch)
		text, usage, err := c.Complete(ctx, msgs)
		if err != nil {
			ch <- llm.StreamDelta{Err: err}
			return
		}
		if text != "" {
			ch <- llm.StreamDelta{Text: text}
		}
		ch <- llm.StreamDelta{Done: true, Usage: usage}
	}()
	return ch, nil
}
