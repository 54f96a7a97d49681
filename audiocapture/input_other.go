//go:build !darwin && !linux

package audiocapture

// defaultInput has no portable answer here; callers must configure the
// device explicitly.
func defaultInput() (format, device string) {
	return "", ""
}
