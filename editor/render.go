package editor

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// redraw clears the current line and draws prompt, buffer, ghost text and
// notice, then moves the cursor back into the buffer.
func (e *Editor) redraw() {
	var sb strings.Builder
	// \r = carriage return, \x1b[K = clear to end of line
	sb.WriteString("\r\x1b[K")
	sb.WriteString(e.prompt)
	sb.Write(e.buf)

	back := runewidth.StringWidth(string(e.buf[e.pos:]))
	if e.overlay != "" {
		sb.WriteString(e.out.String(e.overlay).Faint().String())
		back += runewidth.StringWidth(e.overlay)
	}
	if e.notice != "" {
		notice := "  " + e.notice
		sb.WriteString(e.out.String(notice).Italic().String())
		back += runewidth.StringWidth(notice)
	}
	if back > 0 {
		fmt.Fprintf(&sb, "\x1b[%dD", back)
	}
	io.WriteString(e.w, sb.String())
}

// CursorColumn returns the display column of the cursor, counting the
// prompt.
func (e *Editor) CursorColumn() int {
	return runewidth.StringWidth(e.prompt) + runewidth.StringWidth(string(e.buf[:e.pos]))
}
