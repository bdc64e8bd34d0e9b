// Package sanitize cleans untrusted text (model output, key command output)
// before it reaches the line editor, the shell or a log line.
package sanitize

import (
	"regexp"
	"strings"
)

const esc = 0x1b

var reCSI = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// Sanitize strips ANSI CSI sequences, stray ESC bytes and control bytes
// (keeping TAB), then trims surrounding spaces, tabs and newlines.
// The result is safe to place in a shell line buffer or a log line, and
// Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(text string) string {
	// CSI sequences first: stripping one can join the halves of another.
	for {
		stripped := reCSI.ReplaceAllString(text, "")
		if stripped == text {
			break
		}
		text = stripped
	}

	var buf strings.Builder
	buf.Grow(len(text))
	for i := 0; i < len(text); i++ {
		b := text[i]
		switch {
		case b == esc:
		case b == '\t':
			buf.WriteByte(b)
		case b < 0x20, b == 0x7f:
		default:
			buf.WriteByte(b)
		}
	}

	return strings.Trim(buf.String(), " \t\n")
}
