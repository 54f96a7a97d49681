// Package types provides shared type definitions for the application.
package types

import (
	"fmt"
	"math"
	"time"
)

// Provider represents an inference provider configuration.
type Provider struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"` // "openai", "openai-compatible", "gemini", "claude"
	BaseURL         string  `json:"base_url,omitempty"`
	APIKey          string  `json:"api_key"`
	Model           string  `json:"model"`
	SystemPrompt    string  `json:"system_prompt,omitempty"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	Active          bool    `json:"active"`
	DisableThinking bool    `json:"disable_thinking,omitempty"` // For Gemini: set thinkingBudget to 0
}

// DefaultMaxTokens is the default max tokens if not specified.
const DefaultMaxTokens = 1000

// DefaultTemperature is the default temperature if not specified.
const DefaultTemperature = 0.3

// Usage represents token usage statistics from LLM API calls.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Gaze Types
// ─────────────────────────────────────────────────────────────────────────────

// Point is a screen position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Rect is a screen rectangle in pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// GazeSample is one frame reported by the vision process.
type GazeSample struct {
	Point     Point     `json:"point"`
	EAR       float64   `json:"ear"` // eye aspect ratio, low values mean closed eyes
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Process Health
// ─────────────────────────────────────────────────────────────────────────────

// HealthState is the lifecycle state of the vision process.
type HealthState string

const (
	HealthIdle       HealthState = "idle"
	HealthStarting   HealthState = "starting"
	HealthRunning    HealthState = "running"
	HealthRecovering HealthState = "recovering"
	HealthFailed     HealthState = "failed"
)

// ProcessHealth describes the supervised process. Attempt is only meaningful
// while recovering; Reason is set for recovering and failed states.
type ProcessHealth struct {
	State   HealthState `json:"state"`
	Attempt int         `json:"attempt,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

func (h ProcessHealth) String() string {
	switch h.State {
	case HealthRecovering:
		return fmt.Sprintf("recovering(%d)", h.Attempt)
	case HealthFailed:
		return fmt.Sprintf("failed(%s)", h.Reason)
	default:
		return string(h.State)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Faults
// ─────────────────────────────────────────────────────────────────────────────

// FaultKind classifies errors surfaced to the presentation layer.
type FaultKind string

const (
	FaultProcess    FaultKind = "process"
	FaultPermission FaultKind = "permission"
	FaultCapture    FaultKind = "capture"
	FaultTransport  FaultKind = "transport"
)

// ErrorEvent is the payload of the error event.
type ErrorEvent struct {
	Kind      FaultKind `json:"kind"`
	Message   string    `json:"message"`
	SessionID string    `json:"sessionId,omitempty"`
}
