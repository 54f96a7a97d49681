// Package hotkey registers global key combinations through a system hook.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// ErrRunning is returned by Start when the hook is already active.
var ErrRunning = errors.New("hotkey manager already running")

var modifiers = []string{"ctrl", "shift", "alt", "cmd"}

var aliases = map[string]string{
	"control": "ctrl",
	"option":  "alt",
	"opt":     "alt",
	"command": "cmd",
	"meta":    "cmd",
	"super":   "cmd",
	"escape":  "esc",
	"return":  "enter",
}

// ParseCombo turns "Ctrl+Shift+Space" into the key names the hook
// understands, modifiers first. Exactly one non-modifier key is required.
func ParseCombo(combo string) ([]string, error) {
	if strings.TrimSpace(combo) == "" {
		return nil, errors.New("parse combo: empty")
	}

	var mods []string
	var key string
	for _, part := range strings.Split(combo, "+") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			return nil, fmt.Errorf("parse combo %q: empty key", combo)
		}
		if a, ok := aliases[name]; ok {
			name = a
		}
		if slices.Contains(modifiers, name) {
			if slices.Contains(mods, name) {
				return nil, fmt.Errorf("parse combo %q: duplicate %s", combo, name)
			}
			mods = append(mods, name)
			continue
		}
		if key != "" {
			return nil, fmt.Errorf("parse combo %q: more than one key", combo)
		}
		key = name
	}
	if key == "" {
		return nil, fmt.Errorf("parse combo %q: no key", combo)
	}

	slices.SortFunc(mods, func(a, b string) int {
		return slices.Index(modifiers, a) - slices.Index(modifiers, b)
	})
	return append(mods, key), nil
}

// Binding maps a key combination to an action.
type Binding struct {
	Keys   []string
	Action func()
}

// Manager owns the process-wide keyboard hook.
type Manager struct {
	mu       sync.Mutex
	bindings []Binding
	running  bool
	onStatus func(granted bool)
}

// NewManager creates a manager for the given bindings. Bindings without
// keys are ignored.
func NewManager(bindings ...Binding) *Manager {
	m := &Manager{}
	for _, b := range bindings {
		if len(b.Keys) > 0 && b.Action != nil {
			m.bindings = append(m.bindings, b)
		}
	}
	return m
}

// SetStatusCallback sets a callback for accessibility permission status.
func (m *Manager) SetStatusCallback(fn func(granted bool)) {
	m.mu.Lock()
	m.onStatus = fn
	m.mu.Unlock()
}

// Start registers the bindings and starts the hook. Without accessibility
// permission the hook is not started and the status callback reports false.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrRunning
	}

	granted := IsAccessibilityEnabled(true)
	if m.onStatus != nil {
		m.onStatus(granted)
	}
	if !granted {
		return errors.New("start hotkey: accessibility permission not granted")
	}
	if len(m.bindings) == 0 {
		return nil
	}

	for _, b := range m.bindings {
		action := b.Action
		hook.Register(hook.KeyDown, b.Keys, func(hook.Event) {
			go action()
		})
		slog.Info("hotkey registered", "keys", strings.Join(b.Keys, "+"))
	}

	hook.Process(hook.Start())
	m.running = true
	return nil
}

// Stop ends the hook. Safe to call when not running.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	hook.End()
	m.running = false
}

// Running reports whether the hook is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
