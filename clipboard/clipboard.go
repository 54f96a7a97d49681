// Package clipboard copies response text to the system clipboard.
package clipboard

import (
	"errors"
	"strings"
)

// ErrEmpty is returned when there is nothing to copy.
var ErrEmpty = errors.New("clipboard: empty text")

// SetText replaces the clipboard contents with text.
func SetText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	return setText(text)
}
