// Package conversation holds the bounded chat history and parses assistant
// replies into structured content.
package conversation

import (
	"sync"
	"time"
)

// Roles used in history messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxMessages bounds a history created with a non-positive limit.
const DefaultMaxMessages = 20

// Message is one history entry.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Prune bounds msgs to max entries by keeping the first message and the
// latest max-1. The input is not modified.
func Prune(msgs []Message, max int) []Message {
	if max <= 0 || len(msgs) <= max {
		return append([]Message(nil), msgs...)
	}
	out := make([]Message, 0, max)
	out = append(out, msgs[0])
	return append(out, msgs[len(msgs)-(max-1):]...)
}

// History is the conversation for the lifetime of the process. It has a
// single writer; readers take snapshots.
type History struct {
	mu       sync.RWMutex
	max      int
	messages []Message
}

// NewHistory creates a history bounded to max messages.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	return &History{max: max}
}

// Append adds messages in order and prunes.
func (h *History) Append(msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = Prune(append(h.messages, msgs...), h.max)
}

// Snapshot returns a copy of the current messages.
func (h *History) Snapshot() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Message(nil), h.messages...)
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// SetMax changes the bound, pruning immediately.
func (h *History) SetMax(max int) {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.max = max
	h.messages = Prune(h.messages, max)
}

// Clear removes all messages.
func (h *History) Clear() {
	h.mu.Lock()
	h.messages = nil
	h.mu.Unlock()
}
