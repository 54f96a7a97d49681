package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/realtime"
)

// CallsEndpoint is the WebRTC SDP exchange endpoint.
const CallsEndpoint = "https://api.openai.com/v1/realtime/calls"

var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

// SessionConfig describes a transcription session.
type SessionConfig struct {
	APIKey    string
	BaseURL   string // optional API base for the client secret request
	CallsURL  string // optional SDP endpoint, CallsEndpoint when empty
	Model     string // default gpt-4o-transcribe
	Language  string // ISO 639-1, empty for auto
	Prompt    string
	Eagerness Eagerness // default high
}

// Token is an ephemeral client secret.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// CreateToken mints an ephemeral key for a transcription-only session.
func CreateToken(ctx context.Context, cfg SessionConfig) (*Token, error) {
	model := cfg.Model
	if model == "" {
		model = string(realtime.AudioTranscriptionModelGPT4oTranscribe)
	}
	eagerness := cfg.Eagerness
	if eagerness == "" {
		eagerness = EagernessHigh
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	transcription := realtime.AudioTranscriptionParam{
		Model: realtime.AudioTranscriptionModel(model),
	}
	if cfg.Language != "" {
		transcription.Language = openai.String(cfg.Language)
	}
	if cfg.Prompt != "" {
		transcription.Prompt = openai.String(cfg.Prompt)
	}

	params := realtime.ClientSecretNewParams{
		Session: realtime.ClientSecretNewParamsSessionUnion{
			OfTranscription: &realtime.RealtimeTranscriptionSessionCreateRequestParam{
				Audio: realtime.RealtimeTranscriptionSessionAudioParam{
					Input: realtime.RealtimeTranscriptionSessionAudioInputParam{
						TurnDetection: realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionUnionParam{
							OfSemanticVad: &realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionSemanticVadParam{
								Type:      "semantic_vad",
								Eagerness: string(eagerness),
							},
						},
						Transcription: transcription,
					},
				},
			},
		},
	}
	resp, err := client.Realtime.ClientSecrets.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create client secret: %w", err)
	}

	return &Token{Value: resp.Value, ExpiresAt: time.Unix(resp.ExpiresAt, 0)}, nil
}

// ExchangeSDP posts the local offer and returns the remote answer.
func ExchangeSDP(ctx context.Context, endpoint, offer, ephemeralKey string) (string, error) {
	if endpoint == "" {
		endpoint = CallsEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		slog.Error("exchange sdp", "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("sdp exchange failed (status %d): %s", resp.StatusCode, body)
	}
	return string(body), nil
}
