package stt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// WhisperAPI transcribes audio with the OpenAI transcription endpoint.
type WhisperAPI struct {
	client openai.Client
	model  string
	ready  bool
}

// WhisperAPIConfig holds configuration for WhisperAPI.
type WhisperAPIConfig struct {
	APIKey  string
	BaseURL string // Optional, defaults to OpenAI's API
	Model   string // Optional, defaults to "whisper-1"
}

// NewWhisperAPI creates a new WhisperAPI transcriber.
func NewWhisperAPI(cfg WhisperAPIConfig) *WhisperAPI {
	model := cfg.Model
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &WhisperAPI{
		client: openai.NewClient(opts...),
		model:  model,
		ready:  cfg.APIKey != "",
	}
}

// IsReady reports whether an API key is configured.
func (w *WhisperAPI) IsReady() bool { return w.ready }

// Transcribe sends audio to the transcription endpoint.
func (w *WhisperAPI) Transcribe(ctx context.Context, audio []float32, sampleRate int, language string) (*TranscribeResult, error) {
	if !w.ready {
		return nil, fmt.Errorf("whisper api: %w", ErrNotAuthorized)
	}

	wav := float32ToWAV(audio, sampleRate)
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: openai.AudioModel(w.model),
	}
	if language != "" && language != "auto" {
		params.Language = openai.String(language)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create transcription: %w", err)
	}

	return &TranscribeResult{Text: resp.Text, Language: language}, nil
}
