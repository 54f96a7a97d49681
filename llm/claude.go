package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.aimuz.me/iris/internal/types"
)

const defaultClaudeBaseURL = "https://api.anthropic.com/v1/messages"

// claudeCompleter implements StreamCompleter for the Claude API.
type claudeCompleter struct {
	cfg completerConfig
}

type claudeRequest struct {
	Model     string          `json:"model"`
	Messages  []claudeMessage `json:"messages"`
	System    string          `json:"system,omitempty"`
	MaxTokens int             `json:"max_tokens"`
	Stream    bool            `json:"stream,omitempty"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Type   string             `json:"type"`
	Text   string             `json:"text,omitempty"`
	Source *claudeImageSource `json:"source,omitempty"`
}

type claudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
	Usage   *claudeUsage    `json:"usage,omitempty"`
	Error   *claudeError    `json:"error,omitempty"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// claudeStreamEvent covers the fields used from message_start,
// content_block_delta, message_delta and error events.
type claudeStreamEvent struct {
	Type    string `json:"type"`
	Message struct {
		Usage claudeUsage `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *claudeUsage `json:"usage,omitempty"`
	Error *claudeError `json:"error,omitempty"`
}

func (c *claudeCompleter) buildRequest(messages []Message, stream bool) claudeRequest {
	var claudeMsgs []claudeMessage
	var systemPrompt string

	for _, msg := range messages {
		if msg.Role == "system" {
			systemPrompt += msg.Content
			continue
		}
		blocks := make([]claudeBlock, 0, len(msg.Images)+1)
		for _, img := range msg.Images {
			blocks = append(blocks, claudeBlock{
				Type:   "image",
				Source: &claudeImageSource{Type: "base64", MediaType: img.MIMEType, Data: img.Base64()},
			})
		}
		if msg.Content != "" || len(blocks) == 0 {
			blocks = append(blocks, claudeBlock{Type: "text", Text: msg.Content})
		}
		claudeMsgs = append(claudeMsgs, claudeMessage{Role: msg.Role, Content: blocks})
	}

	maxTokens := c.cfg.maxTokens
	if maxTokens == 0 {
		maxTokens = types.DefaultMaxTokens // Claude requires max_tokens
	}

	return claudeRequest{
		Model:     c.cfg.model,
		Messages:  claudeMsgs,
		System:    systemPrompt,
		MaxTokens: maxTokens,
		Stream:    stream,
	}
}

func (c *claudeCompleter) post(ctx context.Context, messages []Message, stream bool) (*http.Response, error) {
	jsonBody, err := json.Marshal(c.buildRequest(messages, stream))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	baseURL := defaultClaudeBaseURL
	if c.cfg.baseURL != "" {
		baseURL = c.cfg.baseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := c.cfg.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

func (c *claudeCompleter) Complete(ctx context.Context, messages []Message) (string, types.Usage, error) {
	resp, err := c.post(ctx, messages, false)
	if err != nil {
		return "", types.Usage{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("read response: %w", err)
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return "", types.Usage{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if claudeResp.Error != nil {
		return "", types.Usage{}, fmt.Errorf("api error: %s - %s", claudeResp.Error.Type, claudeResp.Error.Message)
	}

	var sb strings.Builder
	for _, block := range claudeResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	var usage types.Usage
	if claudeResp.Usage != nil {
		usage = claudeToUsage(*claudeResp.Usage)
	}
	return sb.String(), usage, nil
}

// StreamComplete implements StreamCompleter.
func (c *claudeCompleter) StreamComplete(ctx context.Context, messages []Message) (<-chan StreamDelta, error) {
	resp, err := c.post(ctx, messages, true)
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

		var usage claudeUsage
		err := readSSE(resp.Body, func(_, data string) (bool, error) {
			var ev claudeStreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return true, nil
			}
			switch ev.Type {
			case "message_start":
				usage.InputTokens = ev.Message.Usage.InputTokens
			case "message_delta":
				if ev.Usage != nil {
					usage.OutputTokens = ev.Usage.OutputTokens
				}
			case "message_stop":
				return false, nil
			case "error":
				if ev.Error != nil {
					return false, fmt.Errorf("api error: %s - %s", ev.Error.Type, ev.Error.Message)
				}
			case "content_block_delta":
				if ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
					break
				}
				select {
				case ch <- StreamDelta{Text: ev.Delta.Text}:
				case <-ctx.Done():
					return false, ctx.Err()
				}
			}
			return true, nil
		})

		last := StreamDelta{Done: true, Usage: claudeToUsage(usage)}
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

func claudeToUsage(u claudeUsage) types.Usage {
	return types.Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}
