package stt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type scriptedTranscriber struct {
	mu      sync.Mutex
	replies []string
	calls   int
	lens    []int
	err     error
	ready   bool
}

func (s *scriptedTranscriber) IsReady() bool { return s.ready }

func (s *scriptedTranscriber) Transcribe(ctx context.Context, audio []float32, sampleRate int, language string) (*TranscribeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.lens = append(s.lens, len(audio))
	reply := s.replies[min(s.calls, len(s.replies)-1)]
	s.calls++
	return &TranscribeResult{Text: reply}, nil
}

func TestChunked_EmitsCumulativeChanges(t *testing.T) {
	tr := &scriptedTranscriber{ready: true, replies: []string{"  hello ", "hello", "hello world"}}
	rec := NewChunked(tr, ChunkedConfig{Name: "test", Interval: 20 * time.Millisecond})

	sess, err := rec.Start(context.Background(), "en-US")
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	var got []string
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		sess.Feed(makeSpeech(1600, 0.1))
		select {
		case r := <-sess.Results():
			got = append(got, r.Text)
		case <-time.After(30 * time.Millisecond):
		case <-deadline:
			t.Fatalf("results = %q, want two updates", got)
		}
	}
	if got[0] != "hello" || got[1] != "hello world" {
		t.Errorf("results = %q, want [hello, hello world]", got)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	for i := 1; i < len(tr.lens); i++ {
		if tr.lens[i] < tr.lens[i-1] {
			t.Errorf("clip %d shorter than clip %d", i, i-1)
		}
	}
}

func TestChunked_SilenceIsNotTranscribed(t *testing.T) {
	tr := &scriptedTranscriber{ready: true, replies: []string{"ghost"}}
	rec := NewChunked(tr, ChunkedConfig{Name: "test", Interval: 10 * time.Millisecond})

	sess, err := rec.Start(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		sess.Feed(makeSilence(1600))
		time.Sleep(10 * time.Millisecond)
	}
	sess.Close()

	if tr.calls != 0 {
		t.Errorf("transcribed silence %d times", tr.calls)
	}
}

func TestChunked_ErrorEndsSession(t *testing.T) {
	boom := errors.New("quota exceeded")
	tr := &scriptedTranscriber{ready: true, err: boom}
	rec := NewChunked(tr, ChunkedConfig{Name: "test", Interval: 10 * time.Millisecond})

	sess, err := rec.Start(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	sess.Feed(makeSpeech(1600, 0.1))
	for range sess.Results() {
	}
	if !errors.Is(sess.Err(), boom) {
		t.Errorf("Err() = %v, want %v", sess.Err(), boom)
	}
}

func TestChunked_AuthorizeNeedsSetup(t *testing.T) {
	rec := NewChunked(&scriptedTranscriber{}, ChunkedConfig{Name: "whisper-local"})
	if err := rec.Authorize(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Authorize() = %v, want ErrNotReady", err)
	}
}

func TestLocale(t *testing.T) {
	tests := []struct {
		in, base, locale string
	}{
		{"", "", "en-US"},
		{"auto", "", "en-US"},
		{"en", "en", "en-US"},
		{"ja", "ja", "ja-JP"},
		{"zh_Hant_TW", "zh", "zh-TW"},
		{"pt-BR", "pt", "pt-BR"},
	}
	for _, tt := range tests {
		if got := BaseLanguage(tt.in); got != tt.base {
			t.Errorf("BaseLanguage(%q) = %q, want %q", tt.in, got, tt.base)
		}
		if got := Locale(tt.in); got != tt.locale {
			t.Errorf("Locale(%q) = %q, want %q", tt.in, got, tt.locale)
		}
	}
}

func TestFloat32ToWAV(t *testing.T) {
	wav := float32ToWAV([]float32{0, 1, -1}, 16000)
	if len(wav) != 44+6 {
		t.Fatalf("len = %d, want 50", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Errorf("bad header %q", wav[:12])
	}
}
