package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.aimuz.me/iris/internal/types"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// geminiCompleter implements StreamCompleter for the Gemini API.
type geminiCompleter struct {
	cfg completerConfig
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	GenerationConfig  geminiConfig      `json:"generationConfig,omitempty"`
	SystemInstruction *geminiSystemInst `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiConfig struct {
	MaxOutputTokens int             `json:"maxOutputTokens,omitempty"`
	Temperature     float64         `json:"temperature,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiSystemInst struct {
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	Error         *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// text concatenates the text parts of the first candidate.
func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (c *geminiCompleter) buildRequest(messages []Message) geminiRequest {
	var contents []geminiContent
	var systemPrompt string

	for _, msg := range messages {
		if msg.Role == "system" {
			systemPrompt += msg.Content + "\n"
			continue
		}

		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}

		parts := make([]geminiPart, 0, len(msg.Images)+1)
		for _, img := range msg.Images {
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{MIMEType: img.MIMEType, Data: img.Base64()}})
		}
		if msg.Content != "" || len(parts) == 0 {
			parts = append(parts, geminiPart{Text: msg.Content})
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}

	req := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiConfig{
			MaxOutputTokens: c.cfg.maxTokens,
			Temperature:     c.cfg.temperature,
		},
	}
	if c.cfg.disableThinking {
		req.GenerationConfig.ThinkingConfig = &thinkingConfig{ThinkingBudget: 0}
	}
	if systemPrompt != "" {
		req.SystemInstruction = &geminiSystemInst{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	return req
}

func (c *geminiCompleter) endpoint(method string, query url.Values) string {
	base := c.cfg.baseURL
	if base == "" {
		base = defaultGeminiBaseURL
	}
	query.Set("key", c.cfg.apiKey)
	return fmt.Sprintf("%s/%s:%s?%s", strings.TrimRight(base, "/"), c.cfg.model, method, query.Encode())
}

func (c *geminiCompleter) post(ctx context.Context, endpoint string, messages []Message) (*http.Response, error) {
	jsonBody, err := json.Marshal(c.buildRequest(messages))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

func (c *geminiCompleter) Complete(ctx context.Context, messages []Message) (string, types.Usage, error) {
	resp, err := c.post(ctx, c.endpoint("generateContent", url.Values{}), messages)
	if err != nil {
		return "", types.Usage{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("read response: %w", err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", types.Usage{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if geminiResp.Error != nil {
		return "", types.Usage{}, fmt.Errorf("api error: %d - %s", geminiResp.Error.Code, geminiResp.Error.Message)
	}
	if len(geminiResp.Candidates) == 0 {
		return "", types.Usage{}, fmt.Errorf("no candidates returned")
	}

	return geminiResp.text(), geminiToUsage(geminiResp.UsageMetadata), nil
}

// StreamComplete implements StreamCompleter.
func (c *geminiCompleter) StreamComplete(ctx context.Context, messages []Message) (<-chan StreamDelta, error) {
	resp, err := c.post(ctx, c.endpoint("streamGenerateContent", url.Values{"alt": {"sse"}}), messages)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("api error: %d - %s", resp.StatusCode, string(body))
	}

	ch := make(chan StreamDelta, 16)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		var usage types.Usage
		err := readSSE(resp.Body, func(_, data string) (bool, error) {
			var chunk geminiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return true, nil
			}
			if chunk.Error != nil {
				return false, fmt.Errorf("api error: %d - %s", chunk.Error.Code, chunk.Error.Message)
			}
			if chunk.UsageMetadata != nil {
				usage = geminiToUsage(chunk.UsageMetadata)
			}
			if text := chunk.text(); text != "" {
				select {
				case ch <- StreamDelta{Text: text}:
				case <-ctx.Done():
					return false, ctx.Err()
				}
			}
			return true, nil
		})

		last := StreamDelta{Done: true, Usage: usage}
		if err != nil {
			last = StreamDelta{Err: err}
		}
		select {
		case ch <- last:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}

func geminiToUsage(u *geminiUsage) types.Usage {
	if u == nil {
		return types.Usage{}
	}
	return types.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
	}
}
