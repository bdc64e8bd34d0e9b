// Package aicmd defines the shared configuration, error taxonomy and IPC
// types for zsh-ai-cmd. IPC messages are JSON-encoded and sent over a Unix
// domain socket, one per line.
package aicmd

// Request is sent from the shell widget to the daemon.
type Request struct {
	// Type is empty for suggestion requests and "cancel" for cancellation.
	Type string `json:"type,omitempty"`
	// RequestID is a per-session incrementing identifier assigned by the shell.
	// The daemon echoes it back in the response for ordering.
	RequestID int `json:"request_id"`
	// SessionID identifies the shell session.
	SessionID string `json:"session_id"`
	// Input is the natural-language fragment typed on the command line.
	Input string `json:"input"`
	// Provider optionally overrides the configured provider for this request.
	Provider string `json:"provider,omitempty"`
}

// Response is sent from the daemon back to the shell widget.
type Response struct {
	// RequestID is echoed from the request.
	RequestID int `json:"request_id"`
	// Suggestion is the sanitized single-line command. Empty on error.
	Suggestion string `json:"suggestion"`
	// Error is set when the daemon cannot fulfill the request.
	Error *Error `json:"error,omitempty"`
}

// Error describes a daemon-side error returned to the shell widget.
type Error struct {
	// Code is a machine-readable error identifier (see ErrorCode).
	Code string `json:"code"`
	// Message is a short human-readable notice.
	Message string `json:"message"`
}

// CancelRequestType marks a Request that cancels the session's in-flight request.
const CancelRequestType = "cancel"
