//go:build darwin

package audiocapture

// defaultInput returns the AVFoundation default microphone.
func defaultInput() (format, device string) {
	return "avfoundation", ":0"
}
