package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// WhisperLocal transcribes audio with a local whisper.cpp binary.
type WhisperLocal struct {
	modelPath string
	modelSize string // "tiny", "base", "small", "medium", "large"
	binPath   string

	mu            sync.RWMutex
	ready         bool
	setupProgress int
}

// WhisperLocalConfig holds configuration for WhisperLocal.
type WhisperLocalConfig struct {
	ModelSize string // "tiny", "base", "small", "medium", "large"
	ModelDir  string // Directory to store models
	BinPath   string // Path to whisper.cpp binary, searched when empty
}

// Model sizes and their approximate download sizes.
var modelSizes = map[string]struct {
	URL  string
	Size int64
}{
	"tiny":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin", 75 * 1024 * 1024},
	"base":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin", 150 * 1024 * 1024},
	"small":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin", 500 * 1024 * 1024},
	"medium": {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin", 1500 * 1024 * 1024},
	"large":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin", 3000 * 1024 * 1024},
}

// NewWhisperLocal creates a new WhisperLocal transcriber.
func NewWhisperLocal(cfg WhisperLocalConfig) (*WhisperLocal, error) {
	if cfg.ModelSize == "" {
		cfg.ModelSize = "base"
	}
	if _, ok := modelSizes[cfg.ModelSize]; !ok {
		return nil, fmt.Errorf("invalid model size: %s", cfg.ModelSize)
	}

	if cfg.ModelDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("get cache dir: %w", err)
		}
		cfg.ModelDir = filepath.Join(dir, "iris", "models")
	}

	w := &WhisperLocal{
		modelSize:     cfg.ModelSize,
		modelPath:     filepath.Join(cfg.ModelDir, fmt.Sprintf("ggml-%s.bin", cfg.ModelSize)),
		binPath:       cfg.BinPath,
		setupProgress: -1,
	}
	if w.binPath == "" {
		w.binPath = findWhisperBinary()
	}

	if _, err := os.Stat(w.modelPath); err == nil && w.binPath != "" {
		w.ready = true
		w.setupProgress = 100
	}

	return w, nil
}

// IsReady reports whether both the binary and the model are present.
func (w *WhisperLocal) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

// SetupProgress returns the model download progress (0-100), -1 if not started.
func (w *WhisperLocal) SetupProgress() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.setupProgress
}

// Setup downloads the whisper model if needed.
func (w *WhisperLocal) Setup(ctx context.Context, progress func(percent int)) error {
	if w.binPath == "" {
		return fmt.Errorf("whisper.cpp binary not found, install whisper-cli")
	}

	w.mu.Lock()
	if w.ready {
		w.mu.Unlock()
		return nil
	}
	w.setupProgress = 0
	w.mu.Unlock()

	info := modelSizes[w.modelSize]
	if err := os.MkdirAll(filepath.Dir(w.modelPath), 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	if err := w.downloadModel(ctx, info.URL, info.Size, progress); err != nil {
		return fmt.Errorf("download model: %w", err)
	}

	w.mu.Lock()
	w.ready = true
	w.setupProgress = 100
	w.mu.Unlock()

	if progress != nil {
		progress(100)
	}
	return nil
}

func (w *WhisperLocal) downloadModel(ctx context.Context, url string, expectedSize int64, progress func(percent int)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status: %d", resp.StatusCode)
	}

	tmpPath := w.modelPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	pw := &progressWriter{total: expectedSize, report: func(pct int) {
		w.mu.Lock()
		w.setupProgress = pct
		w.mu.Unlock()
		if progress != nil {
			progress(pct)
		}
	}}
	if _, err := io.Copy(io.MultiWriter(f, pw), resp.Body); err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpPath, w.modelPath); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

type progressWriter struct {
	total   int64
	written int64
	last    int
	report  func(int)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 {
		if pct := int(min(99, p.written*100/p.total)); pct > p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return len(b), nil
}

// Transcribe runs whisper.cpp over the clip.
func (w *WhisperLocal) Transcribe(ctx context.Context, audio []float32, sampleRate int, language string) (*TranscribeResult, error) {
	if !w.IsReady() {
		return nil, fmt.Errorf("whisper local: %w", ErrNotReady)
	}

	dir, err := os.MkdirTemp("", "iris-whisper-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	audioPath := filepath.Join(dir, "audio.wav")
	if err := os.WriteFile(audioPath, float32ToWAV(audio, sampleRate), 0600); err != nil {
		return nil, fmt.Errorf("write audio file: %w", err)
	}
	outBase := filepath.Join(dir, "out")

	args := []string{
		"-m", w.modelPath,
		"-f", audioPath,
		"-oj",
		"-of", outBase,
		"--no-prints",
	}
	if language != "" {
		args = append(args, "-l", language)
	}

	cmd := exec.CommandContext(ctx, w.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("whisper.cpp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	return parseWhisperCppOutput(data)
}

func parseWhisperCppOutput(data []byte) (*TranscribeResult, error) {
	var out whisperCppOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	result := &TranscribeResult{
		Language: out.Result.Language,
		Segments: make([]Segment, 0, len(out.Transcription)),
	}
	var text strings.Builder
	for _, seg := range out.Transcription {
		text.WriteString(seg.Text)
		result.Segments = append(result.Segments, Segment{
			Text:  strings.TrimSpace(seg.Text),
			Start: time.Duration(seg.Offsets.From) * time.Millisecond,
			End:   time.Duration(seg.Offsets.To) * time.Millisecond,
		})
	}
	result.Text = strings.TrimSpace(text.String())
	return result, nil
}

func findWhisperBinary() string {
	// whisper-cli is the Homebrew name
	names := []string{"whisper-cli", "whisper-cpp", "whisper"}

	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	homeDir, _ := os.UserHomeDir()
	locations := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		filepath.Join(homeDir, ".local", "bin"),
	}
	for _, loc := range locations {
		for _, name := range names {
			path := filepath.Join(loc, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	if runtime.GOOS == "darwin" {
		execPath, _ := os.Executable()
		bundled := filepath.Join(filepath.Dir(execPath), "..", "Resources", "whisper-cli")
		if _, err := os.Stat(bundled); err == nil {
			return bundled
		}
	}

	return ""
}

// whisperCppOutput represents the JSON output from whisper.cpp.
type whisperCppOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Text    string `json:"text"`
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
	} `json:"transcription"`
}
