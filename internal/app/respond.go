package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/iris/conversation"
	"go.aimuz.me/iris/internal/types"
	"go.aimuz.me/iris/llm"
)

// Response is the outcome of one request.
type Response struct {
	Text  string
	Usage types.Usage
}

// ResponseHandler turns a completion stream into presentation events and
// is the only writer of the conversation history.
type ResponseHandler struct {
	history *conversation.History
	now     func() time.Time
}

// NewResponseHandler creates a handler appending to history.
func NewResponseHandler(history *conversation.History) *ResponseHandler {
	return &ResponseHandler{history: history, now: time.Now}
}

// Handle drains stream, republishing deltas through emit. On success the
// exchange is appended to history exactly once and response-done is
// published. A failed stream publishes response-failed and leaves history
// untouched. A cancelled stream, or a session that ended before the
// exchange was appended, publishes nothing and returns context.Canceled. onFirst runs when the first text arrives.
func (h *ResponseHandler) Handle(ctx context.Context, sess *CaptureSession, stream <-chan llm.StreamDelta, emit EmitFunc, onFirst func()) (Response, error) {
	transcript, _ := sess.Transcript()

	var (
		b     strings.Builder
		usage types.Usage
		err   error
	)
loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case d, ok := <-stream:
			if !ok {
				break loop
			}
			if d.Err != nil {
				err = d.Err
				break loop
			}
			if d.Text != "" {
				if b.Len() == 0 && onFirst != nil {
					onFirst()
				}
				b.WriteString(d.Text)
				emit(EventResponseDelta, ResponseDelta{SessionID: sess.ID, Text: d.Text})
			}
			if d.Done {
				usage = d.Usage
				break loop
			}
		}
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	text := b.String()
	msg := ResponseMessage{
		ID:         uuid.NewString(),
		SessionID:  sess.ID,
		Transcript: transcript,
		Usage:      usage,
		Timestamp:  h.now(),
	}

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			msg.Content = conversation.ParseContent(text)
			msg.Error = err.Error()
			emit(EventResponseFailed, msg)
		}
		return Response{Text: text, Usage: usage}, err
	}

	committed := sess.commit(func() {
		h.history.Append(
			conversation.Message{ID: uuid.NewString(), Role: conversation.RoleUser, Content: transcript, Timestamp: sess.StartedAt},
			conversation.Message{ID: msg.ID, Role: conversation.RoleAssistant, Content: text, Timestamp: msg.Timestamp},
		)
	})
	if !committed {
		// Dismissed after the stream completed.
		return Response{Text: text, Usage: usage}, context.Canceled
	}

	msg.Content = conversation.ParseContent(text)
	emit(EventResponseDone, msg)
	slog.Info("response done", "session", sess.ID, "chars", len(text), "tokens", usage.TotalTokens)
	return Response{Text: text, Usage: usage}, nil
}
