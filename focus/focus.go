// Package focus reads the UI element that has keyboard focus, giving the
// model context the screenshot alone may not carry.
package focus

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned on platforms without an accessibility reader.
var ErrUnsupported = errors.New("focused element not supported on this platform")

// maxValue bounds the element value passed to the model.
const maxValue = 2000

// Element describes the focused UI element.
type Element struct {
	App   string `json:"app"`
	Role  string `json:"role,omitempty"`
	Title string `json:"title,omitempty"`
	Value string `json:"value,omitempty"`
}

// Read returns the focused element of the frontmost application.
func Read(ctx context.Context) (*Element, error) {
	out, err := read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read focused element: %w", err)
	}
	return parse(out)
}

// parse splits "app\nrole\ntitle\nvalue"; the value may span lines.
func parse(out string) (*Element, error) {
	parts := strings.SplitN(strings.TrimRight(out, "\n"), "\n", 4)
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return nil, errors.New("read focused element: no frontmost application")
	}
	for len(parts) < 4 {
		parts = append(parts, "")
	}
	e := &Element{
		App:   strings.TrimSpace(parts[0]),
		Role:  clean(parts[1]),
		Title: clean(parts[2]),
		Value: clean(parts[3]),
	}
	return e, nil
}

// AppleScript prints "missing value" for absent attributes.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "missing value" {
		return ""
	}
	return s
}

// Context renders the element as prompt text.
func (e *Element) Context() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Focused application: %s", e.App)
	if e.Role != "" {
		fmt.Fprintf(&b, "\nFocused element: %s", e.Role)
		if e.Title != "" {
			fmt.Fprintf(&b, " %q", e.Title)
		}
	}
	if e.Value != "" {
		v := []rune(e.Value)
		if len(v) > maxValue {
			v = append(v[:maxValue], '…')
		}
		fmt.Fprintf(&b, "\nElement content:\n%s", string(v))
	}
	return b.String()
}
