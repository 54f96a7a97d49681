package audiocapture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

const (
	startupProbe = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond
)

// ffmpegCapturer streams microphone PCM through ffmpeg.
type ffmpegCapturer struct {
	cfg Config

	mu      sync.Mutex
	cmd     *exec.Cmd
	waitErr chan error
}

func (c *ffmpegCapturer) args() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", c.cfg.InputFormat,
		"-i", c.cfg.InputDevice,
		"-ac", strconv.Itoa(c.cfg.Channels),
		"-ar", strconv.Itoa(c.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

func (c *ffmpegCapturer) Start(handler AudioHandler) error {
	if handler == nil {
		return errors.New("audiocapture: nil handler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return ErrRunning
	}

	cmd := exec.Command(c.cfg.Command, c.args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	readEnd := make(chan struct{})
	go func() {
		defer close(readEnd)
		c.pump(stdout, handler)
	}()

	waitErr := make(chan error, 1)
	go func() {
		<-readEnd
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// ffmpeg fails fast on a missing device or denied microphone access.
	select {
	case err := <-waitErr:
		msg := string(bytes.TrimSpace(stderr.Bytes()))
		if err != nil {
			return fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg exited before capture started: %s", msg)
	case <-time.After(startupProbe):
	}

	c.cmd = cmd
	c.waitErr = waitErr
	slog.Debug("microphone capture started", "rate", c.cfg.SampleRate, "channels", c.cfg.Channels)
	return nil
}

// pump reads fixed-size chunks and hands them to handler until EOF.
func (c *ffmpegCapturer) pump(r io.Reader, handler AudioHandler) {
	frame := c.cfg.SampleRate * c.cfg.Channels * c.cfg.ChunkMillis / 1000
	buf := make([]byte, frame*2)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			handler(decodeS16LE(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

func (c *ffmpegCapturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil {
		return nil
	}
	cmd, waitErr := c.cmd, c.waitErr
	c.cmd = nil

	_ = cmd.Process.Signal(os.Interrupt)

	var err error
	select {
	case err = <-waitErr:
	case <-time.After(stopGrace):
		_ = cmd.Process.Kill()
		err = <-waitErr
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return fmt.Errorf("stop ffmpeg: %w", err)
	}
	return nil
}
