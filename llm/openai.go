package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"go.aimuz.me/iris/internal/types"
)

// openaiCompleter implements StreamCompleter for OpenAI and compatible APIs.
type openaiCompleter struct {
	client openai.Client
	cfg    completerConfig
}

func newOpenAICompleter(cfg completerConfig, compatible bool) *openaiCompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.apiKey),
		option.WithHTTPClient(cfg.http),
		option.WithMaxRetries(1),
	}
	// openai-compatible endpoints take the API root, e.g. http://localhost:11434/v1/
	if compatible && cfg.baseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.baseURL))
	}
	return &openaiCompleter{client: openai.NewClient(opts...), cfg: cfg}
}

func (c *openaiCompleter) params(messages []Message) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.cfg.model),
		Messages: toOpenAIMessages(messages),
	}
	if c.cfg.maxTokens > 0 {
		p.MaxCompletionTokens = openai.Int(int64(c.cfg.maxTokens))
	}
	if c.cfg.temperature > 0 {
		p.Temperature = openai.Float(c.cfg.temperature)
	}
	return p
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    img.DataURL(),
					Detail: "high",
				}))
			}
			if m.Content != "" {
				parts = append(parts, openai.TextContentPart(m.Content))
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

func openaiToUsage(u openai.CompletionUsage) types.Usage {
	return types.Usage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}

func (c *openaiCompleter) Complete(ctx context.Context, messages []Message) (string, types.Usage, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages))
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.Usage{}, errors.New("no choices")
	}
	return resp.Choices[0].Message.Content, openaiToUsage(resp.Usage), nil
}

// StreamComplete implements StreamCompleter.
func (c *openaiCompleter) StreamComplete(ctx context.Context, messages []Message) (<-chan StreamDelta, error) {
	p := c.params(messages)
	p.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := c.client.Chat.Completions.NewStreaming(ctx, p)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("create stream: %w", err)
	}

	ch := make(chan StreamDelta, 16)
	go func() {
		defer close(ch)
		defer stream.Close()

		var usage types.Usage
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage = openaiToUsage(chunk.Usage)
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case ch <- StreamDelta{Text: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}

		last := StreamDelta{Done: true, Usage: usage}
		if err := stream.Err(); err != nil {
			last = StreamDelta{Err: fmt.Errorf("read stream: %w", err)}
		}
		select {
		case ch <- last:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}
