// Package screenshot captures the full screen as a PNG image.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

var (
	// ErrPermissionDenied is returned when screen recording is not permitted.
	ErrPermissionDenied = errors.New("screen recording permission denied")
	// ErrUnsupported is returned when no capture tool is available.
	ErrUnsupported = errors.New("screen capture not supported on this platform")
)

// Capture grabs the whole screen and returns PNG bytes.
func Capture(ctx context.Context) ([]byte, error) {
	if !HasPermission() {
		return nil, ErrPermissionDenied
	}
	return capture(ctx)
}

// runTool runs a capture command whose last argument is the output path
// and returns the file it wrote.
func runTool(ctx context.Context, name string, args ...string) ([]byte, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("iris_screenshot_%d.png", time.Now().UnixNano()))
	defer os.Remove(path)

	cmd := exec.CommandContext(ctx, name, append(args, path)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("capture screen: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("read screenshot: empty image")
	}
	return data, nil
}
