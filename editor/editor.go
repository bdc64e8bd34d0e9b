// Package editor is a minimal raw-mode line editor that hosts the
// suggestion engine: it renders ghost text after the buffer, keeps an input
// mode stack for transient key bindings and lets the engine poll for
// keypresses while a request is in flight.
package editor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/muesli/termenv"
	"github.com/npv12/zsh-ai-cmd/suggest"
	"golang.org/x/term"
)

// ErrInterrupt is returned when the user presses Ctrl-C.
var ErrInterrupt = errors.New("interrupted")

// Handler receives line editing events. *suggest.Engine satisfies it.
type Handler interface {
	OnTrigger(ctx context.Context)
	OnBufferChanged(buffer string)
	OnLineFinished()
}

type keyEvent struct {
	key Key
	err error
}

// Editor is a line editor with cursor tracking and ghost-text overlay.
type Editor struct {
	w       io.Writer
	out     *termenv.Output
	profile *termenv.Profile
	events  chan keyEvent
	pending error // read error observed while polling
	closeFn func() error

	trigger string
	handler Handler
	modes   []suggest.KeyMap

	prompt  string
	buf     []byte
	pos     int // cursor byte offset into buf
	overlay string
	notice  string
}

// Option configures an Editor.
type Option func(*Editor)

// WithProfile forces the color profile used for ghost text.
func WithProfile(p termenv.Profile) Option {
	return func(e *Editor) { e.profile = &p }
}

// WithTrigger binds the key that requests a suggestion. The name is parsed
// with ParseKey.
func WithTrigger(name string) Option {
	return func(e *Editor) {
		if key, err := ParseKey(name); err == nil {
			e.trigger = key
		}
	}
}

// New creates an editor reading keys from in and drawing to out.
func New(in io.Reader, out io.Writer, opts ...Option) *Editor {
	e := &Editor{
		w:      out,
		events: make(chan keyEvent),
	}
	for _, o := range opts {
		o(e)
	}
	var outOpts []termenv.OutputOption
	if e.profile != nil {
		outOpts = append(outOpts, termenv.WithProfile(*e.profile))
	}
	e.out = termenv.NewOutput(out, outOpts...)
	go e.readKeys(in)
	return e
}

// OpenTTY opens /dev/tty in raw mode so the editor works even when stdout
// is redirected.
func OpenTTY(opts ...Option) (*Editor, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}

	old, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}

	e := New(tty, tty, opts...)
	e.closeFn = func() error {
		term.Restore(int(tty.Fd()), old)
		return tty.Close()
	}
	return e, nil
}

// Close restores terminal state.
func (e *Editor) Close() error {
	if e.closeFn == nil {
		return nil
	}
	return e.closeFn()
}

// Writer returns the terminal output for prompts and messages.
func (e *Editor) Writer() io.Writer {
	return e.w
}

// SetHandler installs the receiver of editing events.
func (e *Editor) SetHandler(h Handler) {
	e.handler = h
}

func (e *Editor) readKeys(in io.Reader) {
	r := bufio.NewReader(in)
	for {
		key, err := decodeKey(r)
		e.events <- keyEvent{key: key, err: err}
		if err != nil {
			return
		}
	}
}

func (e *Editor) nextKey(ctx context.Context) (Key, error) {
	if err := e.pending; err != nil {
		return Key{}, err
	}
	select {
	case ev := <-e.events:
		if ev.err != nil {
			e.pending = ev.err
		}
		return ev.key, ev.err
	case <-ctx.Done():
		return Key{}, ctx.Err()
	}
}

// ReadLine displays prompt and edits one line until Enter, returning the
// buffer. Ctrl-C returns ErrInterrupt; Ctrl-D on an empty line returns
// io.EOF.
func (e *Editor) ReadLine(ctx context.Context, prompt string) (string, error) {
	e.prompt = prompt
	e.buf = e.buf[:0]
	e.pos = 0
	e.overlay = ""
	e.notice = ""
	e.modes = []suggest.KeyMap{e.baseMode(ctx)}
	e.redraw()

	for {
		key, err := e.nextKey(ctx)
		if err != nil {
			e.finishLine()
			return "", err
		}
		e.notice = ""

		if fn := e.lookup(key); fn != nil {
			fn()
			e.redraw()
			continue
		}

		changed := false
		switch key.Name {
		case "enter":
			e.finishLine()
			return string(e.buf), nil

		case "ctrl-c":
			e.finishLine()
			return "", ErrInterrupt

		case "ctrl-d":
			if len(e.buf) == 0 {
				e.finishLine()
				return "", io.EOF
			}
			changed = e.deleteForward()

		case "backspace":
			changed = e.deleteBackward()

		case "delete":
			changed = e.deleteForward()

		case "left", "ctrl-b":
			if e.pos > 0 {
				_, size := prevRune(e.buf, e.pos)
				e.pos -= size
			}

		case "right", "ctrl-f":
			if e.pos < len(e.buf) {
				_, size := utf8.DecodeRune(e.buf[e.pos:])
				e.pos += size
			}

		case "home", "ctrl-a":
			e.pos = 0

		case "end", "ctrl-e":
			e.pos = len(e.buf)

		case "ctrl-u":
			changed = len(e.buf) > 0
			e.buf = e.buf[:0]
			e.pos = 0

		case "ctrl-k":
			changed = e.pos < len(e.buf)
			e.buf = e.buf[:e.pos]

		case "ctrl-w":
			changed = e.deleteWord()

		case "":
			e.insert(key.Rune)
			changed = true
		}

		if changed && e.handler != nil {
			e.handler.OnBufferChanged(string(e.buf))
		}
		e.redraw()
	}
}

func (e *Editor) baseMode(ctx context.Context) suggest.KeyMap {
	if e.trigger == "" || e.handler == nil {
		return suggest.KeyMap{}
	}
	h := e.handler
	return suggest.KeyMap{e.trigger: func() { h.OnTrigger(ctx) }}
}

// lookup finds the handler for key, searching modes from the top.
func (e *Editor) lookup(key Key) func() {
	if key.Name == "" {
		return nil
	}
	for i := len(e.modes) - 1; i >= 0; i-- {
		if fn, ok := e.modes[i][key.Name]; ok {
			return fn
		}
	}
	return nil
}

func (e *Editor) finishLine() {
	if e.handler != nil {
		e.handler.OnLineFinished()
	}
	e.overlay = ""
	e.notice = ""
	e.redraw()
	io.WriteString(e.w, "\r\n")
}

func (e *Editor) insert(r rune) {
	var enc [utf8.UTFMax]byte
	n := utf8.EncodeRune(enc[:], r)
	e.buf = append(e.buf, enc[:n]...)
	copy(e.buf[e.pos+n:], e.buf[e.pos:len(e.buf)-n])
	copy(e.buf[e.pos:], enc[:n])
	e.pos += n
}

func (e *Editor) deleteBackward() bool {
	if e.pos == 0 {
		return false
	}
	_, size := prevRune(e.buf, e.pos)
	copy(e.buf[e.pos-size:], e.buf[e.pos:])
	e.buf = e.buf[:len(e.buf)-size]
	e.pos -= size
	return true
}

func (e *Editor) deleteForward() bool {
	if e.pos >= len(e.buf) {
		return false
	}
	_, size := utf8.DecodeRune(e.buf[e.pos:])
	copy(e.buf[e.pos:], e.buf[e.pos+size:])
	e.buf = e.buf[:len(e.buf)-size]
	return true
}

// deleteWord removes the word before the cursor along with trailing spaces.
func (e *Editor) deleteWord() bool {
	start := e.pos
	for start > 0 && e.buf[start-1] == ' ' {
		start--
	}
	for start > 0 && e.buf[start-1] != ' ' {
		start--
	}
	if start == e.pos {
		return false
	}
	e.buf = append(e.buf[:start], e.buf[e.pos:]...)
	e.pos = start
	return true
}

// Buffer implements suggest.Host.
func (e *Editor) Buffer() string {
	return string(e.buf)
}

// SetBuffer implements suggest.Host. It does not emit OnBufferChanged.
func (e *Editor) SetBuffer(text string) {
	e.buf = append(e.buf[:0], text...)
	e.pos = len(e.buf)
	e.redraw()
}

// RenderOverlay implements suggest.Host.
func (e *Editor) RenderOverlay(text string) {
	e.overlay = text
	e.redraw()
}

// ClearOverlay implements suggest.Host.
func (e *Editor) ClearOverlay() {
	e.overlay = ""
	e.redraw()
}

// PushMode implements suggest.Host. Key names are canonicalized with
// ParseKey; names it rejects are kept as given.
func (e *Editor) PushMode(m suggest.KeyMap) {
	mode := make(suggest.KeyMap, len(m))
	for name, fn := range m {
		if key, err := ParseKey(name); err == nil {
			name = key
		}
		mode[name] = fn
	}
	e.modes = append(e.modes, mode)
}

// PopMode implements suggest.Host. The base mode is never removed.
func (e *Editor) PopMode() {
	if len(e.modes) > 1 {
		e.modes = e.modes[:len(e.modes)-1]
	}
}

// Notify implements suggest.Host. The notice stays until the next key.
func (e *Editor) Notify(msg string) {
	e.notice = msg
	e.redraw()
}

// WaitKey implements suggest.Host. A read error counts as a keypress so a
// pending request is abandoned; the error is reported by ReadLine.
func (e *Editor) WaitKey(timeout time.Duration) bool {
	if e.pending != nil {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-e.events:
		if ev.err != nil {
			e.pending = ev.err
		}
		return true
	case <-timer.C:
		return false
	}
}

// prevRune returns the rune and byte size of the rune before pos.
func prevRune(buf []byte, pos int) (rune, int) {
	if pos <= 0 {
		return 0, 0
	}
	i := pos - 1
	for i > 0 && !utf8.RuneStart(buf[i]) {
		i--
	}
	return utf8.DecodeRune(buf[i:pos])
}
