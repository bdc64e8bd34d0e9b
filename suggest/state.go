// Package suggest implements the ghost-text suggestion engine: a small
// state machine driven by line-editor events, plus the service that turns a
// buffer into a sanitized command suggestion.
package suggest

import (
	"time"
)

// State is the engine's position in the suggestion lifecycle.
type State int

const (
	// Dormant: no request in flight and nothing displayed.
	Dormant State = iota
	// Pending: a backend request is in flight and the spinner is shown.
	Pending
	// Active: a suggestion is displayed and the accept keys are bound.
	Active
)

func (s State) String() string {
	switch s {
	case Dormant:
		return "dormant"
	case Pending:
		return "pending"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// SeparatorMarker prefixes an overlay that replaces, rather than completes,
// the current buffer.
const SeparatorMarker = " ⇥ "

// KeyMap binds key names (as written in accept_keys) to handlers.
type KeyMap map[string]func()

// Host is the line editor as seen by the engine.
type Host interface {
	// Buffer returns the current input line.
	Buffer() string
	// SetBuffer replaces the input line and moves the cursor to its end.
	SetBuffer(text string)
	// RenderOverlay draws text after the cursor without editing the buffer.
	RenderOverlay(text string)
	// ClearOverlay removes any overlay.
	ClearOverlay()
	// PushMode installs a key map above the current bindings.
	PushMode(KeyMap)
	// PopMode removes the most recently pushed key map.
	PopMode()
	// Notify shows a transient message.
	Notify(msg string)
	// WaitKey waits up to timeout for a keypress and reports whether one
	// arrived. The key is consumed.
	WaitKey(timeout time.Duration) bool
}

// Overlay returns the ghost text for suggestion given the live buffer: the
// remaining suffix when suggestion extends buffer, otherwise the whole
// suggestion behind SeparatorMarker.
func Overlay(buffer, suggestion string) string {
	if len(suggestion) >= len(buffer) && suggestion[:len(buffer)] == buffer {
		return suggestion[len(buffer):]
	}
	return SeparatorMarker + suggestion
}
