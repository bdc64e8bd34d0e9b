package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/npv12/zsh-ai-cmd/sanitize"
	"github.com/npv12/zsh-ai-cmd/suggest"
)

type recordEntry struct {
	Request    recordRequest `toml:"request"`
	Suggestion string        `toml:"suggestion,omitempty"`
	Accepted   bool          `toml:"accepted"`
	Error      *recordError  `toml:"error,omitempty"`
}

type recordRequest struct {
	Timestamp time.Time `toml:"timestamp"`
	Input     string    `toml:"input"`
	Provider  string    `toml:"provider"`
	Cwd       string    `toml:"cwd,omitempty"`
}

type recordError struct {
	Code    string `toml:"code"`
	Message string `toml:"message"`
}

// recorder appends suggestion outcomes to a TOML log.
type recorder struct {
	mu       sync.Mutex
	w        io.Writer
	provider string
	now      func() time.Time
	getwd    func() (string, error)
}

func newRecorder(w io.Writer, provider string) *recorder {
	return &recorder{w: w, provider: provider, now: time.Now, getwd: os.Getwd}
}

// Record writes o as one TOML document separated by a comment rule.
// Environment references in commands are redacted.
func (r *recorder) Record(o suggest.Outcome) {
	entry := recordEntry{
		Request: recordRequest{
			Timestamp: r.now().UTC().Truncate(time.Second),
			Input:     sanitize.RedactCommand(o.Input),
			Provider:  r.provider,
		},
		Suggestion: sanitize.RedactCommand(o.Suggestion),
		Accepted:   o.Accepted,
	}
	if cwd, err := r.getwd(); err == nil {
		entry.Request.Cwd = cwd
	}
	if e := aicmd.NewError(o.Err); e != nil {
		entry.Error = &recordError{Code: e.Code, Message: e.Message}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", strings.Repeat("═", 60))
	if err := toml.NewEncoder(&buf).Encode(entry); err != nil {
		slog.Warn("failed to encode record", "error", err)
		return
	}
	buf.WriteString("\n")

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(buf.Bytes()); err != nil {
		slog.Warn("failed to write record", "error", err)
	}
}
