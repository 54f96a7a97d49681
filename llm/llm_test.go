package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testImage = Image{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}

func testMessages() []Message {
	return []Message{
		{Role: "system", Content: "Answer briefly."},
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
		{Role: "user", Content: "what is on screen?", Images: []Image{testImage}},
	}
}

func collect(t *testing.T, ch <-chan StreamDelta) (string, StreamDelta) {
	t.Helper()
	var sb strings.Builder
	var last StreamDelta
	for d := range ch {
		sb.WriteString(d.Text)
		last = d
	}
	return sb.String(), last
}

func TestImage_DataURL(t *testing.T) {
	if got := testImage.DataURL(); got != "data:image/jpeg;base64,/9j/" {
		t.Errorf("DataURL() = %q", got)
	}
}

func TestOpenAI_CompleteSendsImage(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"A terminal."}}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`)
	}))
	defer srv.Close()

	c := NewCompleter("openai-compatible", "sk-test", srv.URL+"/", "gpt-4o", Options{MaxTokens: 100})
	text, usage, err := c.Complete(context.Background(), testMessages())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "A terminal." || usage.TotalTokens != 13 {
		t.Errorf("got %q %+v", text, usage)
	}

	msgs, _ := body["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("sent %d messages, want 4", len(msgs))
	}
	last, _ := msgs[3].(map[string]any)
	parts, _ := last["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("user content parts = %v", last["content"])
	}
	img, _ := parts[0].(map[string]any)
	url, _ := img["image_url"].(map[string]any)
	if url["url"] != testImage.DataURL() {
		t.Errorf("image_url = %v", img)
	}
}

func TestOpenAI_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"1. Restart", " the server"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		io.WriteString(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":4,\"total_tokens\":9}}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewCompleter("openai-compatible", "sk-test", srv.URL+"/", "gpt-4o", Options{}).(StreamCompleter)
	ch, err := c.StreamComplete(context.Background(), testMessages())
	if err != nil {
		t.Fatal(err)
	}
	text, last := collect(t, ch)
	if text != "1. Restart the server" {
		t.Errorf("text = %q", text)
	}
	if !last.Done || last.Err != nil || last.Usage.TotalTokens != 9 {
		t.Errorf("last delta = %+v", last)
	}
}

func TestOpenAI_StreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := NewCompleter("openai-compatible", "sk-bad", srv.URL+"/", "gpt-4o", Options{}).(StreamCompleter)
	if _, err := c.StreamComplete(context.Background(), testMessages()); err == nil {
		t.Error("expected error for 401")
	}
}

func TestGemini_InlineImageAndStream(t *testing.T) {
	var req geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/gemini-2.0-flash:streamGenerateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" || r.URL.Query().Get("key") != "g-key" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"It is \"}]}}]}\n\n")
		io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"a chart.\"}]}}],\"usageMetadata\":{\"promptTokenCount\":7,\"candidatesTokenCount\":4,\"totalTokenCount\":11}}\n\n")
	}))
	defer srv.Close()

	c := NewCompleter("gemini", "g-key", srv.URL, "gemini-2.0-flash", Options{DisableThinking: true}).(StreamCompleter)
	ch, err := c.StreamComplete(context.Background(), testMessages())
	if err != nil {
		t.Fatal(err)
	}
	text, last := collect(t, ch)
	if text != "It is a chart." || last.Usage.TotalTokens != 11 {
		t.Errorf("got %q %+v", text, last)
	}

	if req.SystemInstruction == nil || req.GenerationConfig.ThinkingConfig == nil {
		t.Error("system instruction or thinking config missing")
	}
	if len(req.Contents) != 3 || req.Contents[1].Role != "model" {
		t.Fatalf("contents = %+v", req.Contents)
	}
	parts := req.Contents[2].Parts
	if len(parts) != 2 || parts[0].InlineData == nil || parts[0].InlineData.Data != "/9j/" {
		t.Errorf("user parts = %+v", parts)
	}
}

func TestGemini_CompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":{"code":403,"message":"API key not valid"}}`)
	}))
	defer srv.Close()

	c := NewCompleter("gemini", "bad", srv.URL, "gemini-2.0-flash", Options{})
	if _, _, err := c.Complete(context.Background(), testMessages()); err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("Complete() error = %v", err)
	}
}

func TestClaude_ImageBlocksAndStream(t *testing.T) {
	var req claudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "c-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":20}}}\n\n")
		io.WriteString(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"```go\\n\"}}\n\n")
		io.WriteString(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"x := 1\\n```\"}}\n\n")
		io.WriteString(w, "event: message_delta\ndata: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":6}}\n\n")
		io.WriteString(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	c := NewCompleter("claude", "c-key", srv.URL, "claude-sonnet-4-5", Options{}).(StreamCompleter)
	ch, err := c.StreamComplete(context.Background(), testMessages())
	if err != nil {
		t.Fatal(err)
	}
	text, last := collect(t, ch)
	if text != "```go\nx := 1\n```" {
		t.Errorf("text = %q", text)
	}
	if last.Usage.PromptTokens != 20 || last.Usage.CompletionTokens != 6 {
		t.Errorf("usage = %+v", last.Usage)
	}

	if !req.Stream || req.System != "Answer briefly." || req.MaxTokens == 0 {
		t.Errorf("request = %+v", req)
	}
	blocks := req.Messages[2].Content
	if len(blocks) != 2 || blocks[0].Type != "image" || blocks[0].Source.MediaType != "image/jpeg" {
		t.Errorf("user blocks = %+v", blocks)
	}
}

func TestClaude_StreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	c := NewCompleter("claude", "c-key", srv.URL, "claude-sonnet-4-5", Options{}).(StreamCompleter)
	ch, err := c.StreamComplete(context.Background(), testMessages())
	if err != nil {
		t.Fatal(err)
	}
	_, last := collect(t, ch)
	if last.Err == nil || !strings.Contains(last.Err.Error(), "overloaded_error") {
		t.Errorf("last delta = %+v", last)
	}
}

func TestReadSSE_MultilineAndDone(t *testing.T) {
	in := "event: a\ndata: line1\ndata: line2\n\n: comment\ndata: second\n\ndata: [DONE]\n\ndata: ignored\n\n"
	var got []string
	err := readSSE(strings.NewReader(in), func(event, data string) (bool, error) {
		got = append(got, event+"|"+data)
		return true, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a|line1\nline2", "|second"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %q, want %q", got, want)
	}
}
