// Package audiocapture streams microphone audio as float32 PCM.
package audiocapture

import "errors"

// AudioHandler receives interleaved float32 samples in [-1, 1]. The slice is
// owned by the handler.
type AudioHandler func(samples []float32)

// Capturer captures microphone audio.
type Capturer interface {
	Start(handler AudioHandler) error
	Stop() error
}

var (
	// ErrRunning is returned by Start while a capture is active.
	ErrRunning = errors.New("audiocapture: already running")
	// ErrUnsupported is returned when no input device is known for the platform.
	ErrUnsupported = errors.New("audiocapture: unsupported platform")
)

// Config configures microphone capture.
type Config struct {
	SampleRate  int    // default 16000
	Channels    int    // default 1
	Command     string // ffmpeg binary, default "ffmpeg"
	InputFormat string // ffmpeg -f for the input, platform default when empty
	InputDevice string // ffmpeg -i for the input, platform default when empty
	ChunkMillis int    // handler granularity, default 20
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.ChunkMillis <= 0 {
		c.ChunkMillis = 20
	}
	if c.InputFormat == "" && c.InputDevice == "" {
		c.InputFormat, c.InputDevice = defaultInput()
	}
	return c
}

// New creates a Capturer backed by an ffmpeg child process.
func New(cfg Config) (Capturer, error) {
	cfg = cfg.withDefaults()
	if cfg.InputFormat == "" {
		return nil, ErrUnsupported
	}
	return &ffmpegCapturer{cfg: cfg}, nil
}

// decodeS16LE converts little-endian signed 16-bit PCM to float32.
// A trailing odd byte is ignored.
func decodeS16LE(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
		out[i] = float32(v) / 32768
	}
	return out
}
