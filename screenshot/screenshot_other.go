//go:build !darwin

package screenshot

import (
	"context"
	"os/exec"
)

// HasPermission reports true; other platforms have no capture permission.
func HasPermission() bool {
	return true
}

// RequestPermission is a no-op outside macOS.
func RequestPermission() {}

// tools are tried in order; the output path is appended.
var tools = [][]string{
	{"grim"},
	{"gnome-screenshot", "-f"},
	{"import", "-window", "root"},
}

func capture(ctx context.Context) ([]byte, error) {
	for _, t := range tools {
		if _, err := exec.LookPath(t[0]); err == nil {
			return runTool(ctx, t[0], t[1:]...)
		}
	}
	return nil, ErrUnsupported
}
