package realtime

import (
	"encoding/json"
	"fmt"
)

// Server event types consumed from the oai-events data channel.
const (
	EventTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	EventTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"
	EventSpeechStarted          = "input_audio_buffer.speech_started"
	EventSpeechStopped          = "input_audio_buffer.speech_stopped"
	EventError                  = "error"
)

// Eagerness controls how quickly semantic VAD closes a turn.
type Eagerness string

const (
	EagernessLow    Eagerness = "low"
	EagernessMedium Eagerness = "medium"
	EagernessHigh   Eagerness = "high"
	EagernessAuto   Eagerness = "auto"
)

// Event is a server event. Switch on the concrete type.
type Event interface {
	Type() string
}

// SpeechStartedEvent marks the start of a speech item.
type SpeechStartedEvent struct {
	ItemID       string `json:"item_id"`
	AudioStartMs int    `json:"audio_start_ms"`
}

func (SpeechStartedEvent) Type() string { return EventSpeechStarted }

// SpeechStoppedEvent marks the end of a speech item.
type SpeechStoppedEvent struct {
	ItemID     string `json:"item_id"`
	AudioEndMs int    `json:"audio_end_ms"`
}

func (SpeechStoppedEvent) Type() string { return EventSpeechStopped }

// DeltaEvent carries incremental transcript text for an item.
type DeltaEvent struct {
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

func (DeltaEvent) Type() string { return EventTranscriptionDelta }

// CompletedEvent carries the final transcript of an item.
type CompletedEvent struct {
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

func (CompletedEvent) Type() string { return EventTranscriptionCompleted }

// APIError is the error body of error and failed events.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime %s: %s (%s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("realtime %s: %s", e.Type, e.Message)
}

// FailedEvent reports that one item could not be transcribed.
type FailedEvent struct {
	ItemID string   `json:"item_id"`
	Error  APIError `json:"error"`
}

func (FailedEvent) Type() string { return EventTranscriptionFailed }

// ErrorEvent reports a session-level failure.
type ErrorEvent struct {
	Error APIError `json:"error"`
}

func (ErrorEvent) Type() string { return EventError }

// UnknownEvent is any event not listed above.
type UnknownEvent struct {
	Kind string
	Raw  json.RawMessage
}

func (e UnknownEvent) Type() string { return e.Kind }

func decode[E Event](data []byte) (Event, error) {
	var e E
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Type(), err)
	}
	return e, nil
}

// ParseEvent decodes a server event.
func ParseEvent(data []byte) (Event, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("decode event header: %w", err)
	}

	switch header.Type {
	case EventSpeechStarted:
		return decode[SpeechStartedEvent](data)
	case EventSpeechStopped:
		return decode[SpeechStoppedEvent](data)
	case EventTranscriptionDelta:
		return decode[DeltaEvent](data)
	case EventTranscriptionCompleted:
		return decode[CompletedEvent](data)
	case EventTranscriptionFailed:
		return decode[FailedEvent](data)
	case EventError:
		return decode[ErrorEvent](data)
	default:
		return UnknownEvent{Kind: header.Type, Raw: data}, nil
	}
}
