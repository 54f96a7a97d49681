package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.aimuz.me/iris/audiocapture"
	"go.aimuz.me/iris/config"
	"go.aimuz.me/iris/stt"
	"go.aimuz.me/iris/stt/realtime"
)

// microphone opens an ffmpeg capture in the recognizer's format.
func microphone(format stt.AudioFormat) (audiocapture.Capturer, error) {
	c, err := audiocapture.New(audiocapture.Config{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("create audio capture: %w", err)
	}
	return &meteredCapturer{Capturer: c}, nil
}

// meteredCapturer logs the amount of audio forwarded per session.
type meteredCapturer struct {
	audiocapture.Capturer
	chunks atomic.Int64
}

func (m *meteredCapturer) Start(handler audiocapture.AudioHandler) error {
	m.chunks.Store(0)
	return m.Capturer.Start(func(samples []float32) {
		if n := m.chunks.Add(1); n%250 == 0 {
			slog.Debug("streamed audio samples", "chunks", n, "samples", len(samples))
		}
		handler(samples)
	})
}

func (m *meteredCapturer) Stop() error {
	err := m.Capturer.Stop()
	slog.Info("audio capture stopped", "chunks", m.chunks.Load())
	return err
}

// newRecognizer builds the recognizer selected in the speech config.
func newRecognizer(ctx context.Context, cfg *config.Config) (stt.Recognizer, error) {
	switch cfg.Speech.Recognizer {
	case "whisper-local":
		w, err := stt.NewWhisperLocal(stt.WhisperLocalConfig{ModelSize: cfg.Speech.LocalModel})
		if err != nil {
			return nil, fmt.Errorf("create local whisper: %w", err)
		}
		if !w.IsReady() {
			go func() {
				slog.Info("downloading whisper model", "size", cfg.Speech.LocalModel)
				if err := w.Setup(ctx, nil); err != nil {
					slog.Error("setup local whisper", "error", err)
				}
			}()
		}
		return stt.NewChunked(w, stt.ChunkedConfig{
			Name:        "whisper-local",
			DisplayName: "Whisper (local)",
			Local:       true,
		}), nil

	case "realtime":
		cred, err := cfg.SpeechCredential()
		if err != nil {
			return nil, err
		}
		return realtime.New(realtime.Config{
			APIKey:  cred.APIKey,
			BaseURL: cred.BaseURL,
			Model:   cfg.Speech.Model,
		}), nil

	case "whisper-api", "":
		cred, err := cfg.SpeechCredential()
		if err != nil {
			return nil, err
		}
		w := stt.NewWhisperAPI(stt.WhisperAPIConfig{
			APIKey:  cred.APIKey,
			BaseURL: cred.BaseURL,
			Model:   cfg.Speech.Model,
		})
		return stt.NewChunked(w, stt.ChunkedConfig{
			Name:        "whisper-api",
			DisplayName: "Whisper API",
		}), nil

	default:
		return nil, fmt.Errorf("unknown speech recognizer: %s", cfg.Speech.Recognizer)
	}
}
