//go:build linux

package audiocapture

// defaultInput returns the PulseAudio default source.
func defaultInput() (format, device string) {
	return "pulse", "default"
}
