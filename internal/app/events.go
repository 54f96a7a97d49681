package app

import (
	"time"

	"go.aimuz.me/iris/conversation"
	"go.aimuz.me/iris/internal/types"
)

// Event names for frontend communication.
const (
	EventProcessHealth     = "process-health"
	EventGazePosition      = "gaze-position"
	EventGazeStable        = "gaze-stable"
	EventBlinkPause        = "blink-pause"
	EventSessionState      = "session-state"
	EventTranscriptPartial = "transcript-partial"
	EventCountdown         = "countdown"
	EventResponseDelta     = "response-delta"
	EventResponseDone      = "response-done"
	EventResponseFailed    = "response-failed"
	EventError             = "error"
	EventAccessibilityPerm = "accessibility-permission"
)

// StickyEvents are replayed to overlay clients that connect late.
var StickyEvents = []string{EventProcessHealth, EventSessionState, EventAccessibilityPerm}

// EmitFunc publishes an event to the presentation layer.
type EmitFunc func(name string, data any)

// Phase is the lifecycle step of a capture session.
type Phase string

const (
	PhaseCapturing Phase = "capturing" // taking the screenshot
	PhaseListening Phase = "listening"
	PhaseSpeaking  Phase = "speaking" // speech detected
	PhaseThinking  Phase = "thinking" // waiting for the model
	PhaseAnswering Phase = "answering"
	PhaseIdle      Phase = "idle"
)

// SessionState is the payload of EventSessionState.
type SessionState struct {
	ID     string `json:"id"`
	Phase  Phase  `json:"phase"`
	Reason string `json:"reason,omitempty"`
}

// ResponseDelta is the payload of EventResponseDelta.
type ResponseDelta struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// ResponseMessage is the payload of EventResponseDone and
// EventResponseFailed.
type ResponseMessage struct {
	ID         string               `json:"id"`
	SessionID  string               `json:"sessionId"`
	Transcript string               `json:"transcript"`
	Content    conversation.Content `json:"content"`
	Usage      types.Usage          `json:"usage"`
	Error      string               `json:"error,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// TranscriptPartial is the payload of EventTranscriptPartial.
type TranscriptPartial struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// Countdown is the payload of EventCountdown.
type Countdown struct {
	SessionID   string `json:"sessionId"`
	RemainingMS int64  `json:"remainingMs"`
}
