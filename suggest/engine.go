package suggest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/npv12/zsh-ai-cmd/provider"
)

// Completer produces a suggestion for a buffer. *Service satisfies it.
type Completer interface {
	CheckKey(ctx context.Context) error
	Complete(ctx context.Context, input string) (string, error)
}

// Engine is the suggestion state machine. All methods must be called from
// the line editor's event loop.
type Engine struct {
	host       Host
	completer  Completer
	acceptKeys []string
	timeout    time.Duration
	spin       spinner.Spinner

	state      State
	suggestion string
	anchor     string // buffer the overlay was last computed for
	overlay    string
	generation uint64
	modePushed bool
	onOutcome  func(Outcome)
}

// Outcome reports how a suggestion cycle ended.
type Outcome struct {
	Input      string
	Suggestion string
	Accepted   bool
	Err        error
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the upper bound of a Pending cycle. The spinner loop
// never runs longer than the timeout plus one tick.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithSpinner sets the progress indicator frames and tick rate.
func WithSpinner(s spinner.Spinner) Option {
	return func(e *Engine) { e.spin = s }
}

// WithOutcome registers a callback invoked when a suggestion is accepted,
// abandoned or fails.
func WithOutcome(fn func(Outcome)) Option {
	return func(e *Engine) { e.onOutcome = fn }
}

// NewEngine creates an engine bound to host.
func NewEngine(cfg *aicmd.Config, host Host, completer Completer, opts ...Option) *Engine {
	e := &Engine{
		host:      host,
		completer: completer,
		timeout:   provider.RequestTimeout,
		spin:      spinner.MiniDot,
	}
	if cfg != nil {
		e.acceptKeys = cfg.AcceptKeys
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// State returns the current state.
func (e *Engine) State() State { return e.state }

// Suggestion returns the current suggestion, or "" unless Active.
func (e *Engine) Suggestion() string { return e.suggestion }

// Overlay returns the ghost text currently rendered, or "".
func (e *Engine) Overlay() string { return e.overlay }

type result struct {
	generation uint64
	suggestion string
	err        error
}

// OnTrigger handles the trigger key. With a non-empty buffer and a
// resolvable credential it enters Pending and blocks, animating the spinner,
// until the request completes, times out or a key cancels it.
func (e *Engine) OnTrigger(ctx context.Context) {
	if e.state == Pending {
		return
	}
	buffer := e.host.Buffer()
	if strings.TrimSpace(buffer) == "" {
		return
	}
	if e.state == Active {
		e.deactivate(false)
	}

	if err := e.completer.CheckKey(ctx); err != nil {
		slog.Debug("trigger rejected", "error", err)
		e.host.Notify(notice(err))
		return
	}

	e.generation++
	gen := e.generation
	e.state = Pending

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	done := make(chan result, 1)
	go func() {
		s, err := e.completer.Complete(reqCtx, buffer)
		done <- result{generation: gen, suggestion: s, err: err}
	}()

	tick := e.spin.FPS
	if tick <= 0 {
		tick = spinner.MiniDot.FPS
	}
	deadline := time.Now().Add(e.timeout + tick)
	frame := 0
	for {
		select {
		case r := <-done:
			e.finish(buffer, r)
			return
		default:
		}

		if !time.Now().Before(deadline) {
			cancel()
			e.abandon()
			e.host.Notify("request timed out")
			e.report(Outcome{Input: buffer, Err: context.DeadlineExceeded})
			return
		}

		e.host.RenderOverlay(" " + e.spin.Frames[frame%len(e.spin.Frames)])
		frame++

		if e.host.WaitKey(tick) {
			cancel()
			e.abandon()
			slog.Debug("request cancelled by keypress", "generation", gen)
			return
		}
	}
}

// abandon invalidates the in-flight request and returns to Dormant.
func (e *Engine) abandon() {
	e.generation++
	e.state = Dormant
	e.overlay = ""
	e.host.ClearOverlay()
}

func (e *Engine) finish(buffer string, r result) {
	if r.generation != e.generation || e.state != Pending {
		slog.Debug("discarding stale result", "generation", r.generation, "current", e.generation)
		return
	}

	if r.err != nil {
		e.state = Dormant
		e.overlay = ""
		e.host.ClearOverlay()
		e.host.Notify(notice(r.err))
		e.report(Outcome{Input: buffer, Err: r.err})
		return
	}

	e.state = Active
	e.suggestion = r.suggestion
	e.anchor = e.host.Buffer()
	e.overlay = Overlay(e.anchor, e.suggestion)
	e.host.RenderOverlay(e.overlay)

	keys := make(KeyMap, len(e.acceptKeys))
	for _, k := range e.acceptKeys {
		keys[k] = e.Accept
	}
	e.host.PushMode(keys)
	e.modePushed = true
}

// Accept replaces the buffer with the suggestion and returns to Dormant.
func (e *Engine) Accept() {
	if e.state != Active {
		return
	}
	suggestion := e.suggestion
	input := e.anchor
	e.deactivate(true)
	e.host.SetBuffer(suggestion)
	e.report(Outcome{Input: input, Suggestion: suggestion, Accepted: true})
}

// OnBufferChanged tracks the live buffer while Active. The overlay follows
// the user typing through the suggestion; any divergence deactivates.
func (e *Engine) OnBufferChanged(buffer string) {
	if e.state != Active {
		return
	}
	if !strings.HasPrefix(e.suggestion, buffer) {
		e.deactivate(false)
		return
	}
	e.anchor = buffer
	e.overlay = e.suggestion[len(buffer):]
	e.host.RenderOverlay(e.overlay)
}

// OnLineFinished resets the engine when the line is submitted or aborted.
func (e *Engine) OnLineFinished() {
	switch e.state {
	case Pending:
		e.abandon()
	case Active:
		e.deactivate(false)
	}
}

// deactivate leaves Active, restoring the previous key bindings.
func (e *Engine) deactivate(accepted bool) {
	if e.modePushed {
		e.host.PopMode()
		e.modePushed = false
	}
	e.host.ClearOverlay()
	if !accepted && e.suggestion != "" {
		e.report(Outcome{Input: e.anchor, Suggestion: e.suggestion})
	}
	e.state = Dormant
	e.suggestion = ""
	e.anchor = ""
	e.overlay = ""
}

func (e *Engine) report(o Outcome) {
	if e.onOutcome != nil {
		e.onOutcome(o)
	}
}

// notice converts an error into a short user-facing message.
func notice(err error) string {
	switch {
	case errors.Is(err, aicmd.ErrEmptyResult):
		return "no suggestion"
	case errors.Is(err, aicmd.ErrCredentialMissing), errors.Is(err, aicmd.ErrConfig):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	default:
		msg := err.Error()
		if len(msg) > 120 {
			msg = msg[:120] + "..."
		}
		return msg
	}
}
