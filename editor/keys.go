package editor

import (
	"bufio"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Key is one decoded keypress. Name is empty for printable input, in which
// case Rune holds the character.
type Key struct {
	Name string
	Rune rune
}

func (k Key) String() string {
	if k.Name == "" {
		return string(k.Rune)
	}
	return k.Name
}

var csiFinal = map[byte]string{
	'A': "up",
	'B': "down",
	'C': "right",
	'D': "left",
	'H': "home",
	'F': "end",
	'Z': "shift-tab",
}

var csiTilde = map[string]string{
	"1": "home",
	"7": "home",
	"3": "delete",
	"4": "end",
	"8": "end",
	"5": "page-up",
	"6": "page-down",
}

// decodeKey reads one keypress from r.
func decodeKey(r *bufio.Reader) (Key, error) {
	b, err := r.ReadByte()
	if err != nil {
		return Key{}, err
	}

	switch {
	case b == 9:
		return Key{Name: "tab"}, nil
	case b == 13 || b == 10:
		return Key{Name: "enter"}, nil
	case b == 127 || b == 8:
		return Key{Name: "backspace"}, nil
	case b == 0:
		return Key{Name: "ctrl-space"}, nil
	case b == 27:
		return decodeEscape(r)
	case b <= 26:
		return Key{Name: "ctrl-" + string(rune('a'+b-1))}, nil
	case b < 32:
		return Key{Name: "ctrl-" + string(rune('@'+b))}, nil
	case b < utf8.RuneSelf:
		return Key{Rune: rune(b)}, nil
	}

	// Multi-byte UTF-8 sequence.
	seq := []byte{b}
	for i := 1; i < utf8RuneLen(b); i++ {
		next, err := r.ReadByte()
		if err != nil {
			return Key{}, err
		}
		seq = append(seq, next)
	}
	ch, _ := utf8.DecodeRune(seq)
	return Key{Rune: ch}, nil
}

// decodeEscape decodes the remainder of an ESC-prefixed sequence. A lone
// ESC with nothing buffered behind it is the escape key itself.
func decodeEscape(r *bufio.Reader) (Key, error) {
	if r.Buffered() == 0 {
		return Key{Name: "esc"}, nil
	}
	b, err := r.ReadByte()
	if err != nil {
		return Key{}, err
	}

	switch b {
	case '[':
		var params []byte
		for {
			c, err := r.ReadByte()
			if err != nil {
				return Key{}, err
			}
			if c >= 0x40 && c <= 0x7e {
				if c == '~' {
					if name, ok := csiTilde[string(params)]; ok {
						return Key{Name: name}, nil
					}
					return Key{Name: "unknown"}, nil
				}
				if name, ok := csiFinal[c]; ok {
					return Key{Name: name}, nil
				}
				return Key{Name: "unknown"}, nil
			}
			params = append(params, c)
		}
	case 'O':
		c, err := r.ReadByte()
		if err != nil {
			return Key{}, err
		}
		if name, ok := csiFinal[c]; ok {
			return Key{Name: name}, nil
		}
		return Key{Name: "unknown"}, nil
	default:
		if b >= 32 && b < utf8.RuneSelf {
			return Key{Name: "alt-" + string(rune(b))}, nil
		}
		return Key{Name: "esc"}, nil
	}
}

// utf8RuneLen returns the expected byte length of a UTF-8 sequence
// from its leading byte.
func utf8RuneLen(lead byte) int {
	switch {
	case lead < 0xC0:
		return 1
	case lead < 0xE0:
		return 2
	case lead < 0xF0:
		return 3
	default:
		return 4
	}
}

var keyAliases = map[string]string{
	"escape":      "esc",
	"return":      "enter",
	"right-arrow": "right",
	"left-arrow":  "left",
	"up-arrow":    "up",
	"down-arrow":  "down",
	"btab":        "shift-tab",
	"del":         "delete",
}

var namedKeys = map[string]bool{
	"tab": true, "enter": true, "backspace": true, "esc": true,
	"up": true, "down": true, "left": true, "right": true,
	"home": true, "end": true, "delete": true, "shift-tab": true,
	"page-up": true, "page-down": true, "ctrl-space": true,
}

// ParseKey converts a configured key name to its canonical form. It
// accepts "ctrl-o", "C-o", "^O", "alt-f", "M-f", "tab", "right" and the
// other named keys.
func ParseKey(s string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := keyAliases[name]; ok {
		name = alias
	}
	if namedKeys[name] {
		return name, nil
	}

	var mod, rest string
	switch {
	case len(name) == 2 && name[0] == '^':
		mod, rest = "ctrl-", name[1:]
	case strings.HasPrefix(name, "ctrl-"):
		mod, rest = "ctrl-", name[len("ctrl-"):]
	case strings.HasPrefix(name, "control-"):
		mod, rest = "ctrl-", name[len("control-"):]
	case strings.HasPrefix(name, "c-"):
		mod, rest = "ctrl-", name[len("c-"):]
	case strings.HasPrefix(name, "alt-"):
		mod, rest = "alt-", name[len("alt-"):]
	case strings.HasPrefix(name, "m-"):
		mod, rest = "alt-", name[len("m-"):]
	default:
		return "", fmt.Errorf("unknown key %q", s)
	}

	if mod == "ctrl-" && rest == "space" {
		return "ctrl-space", nil
	}
	if len(rest) != 1 || rest[0] < 'a' || rest[0] > 'z' {
		return "", fmt.Errorf("unknown key %q", s)
	}
	// Ctrl-I and Ctrl-M are indistinguishable from tab and enter.
	switch mod + rest {
	case "ctrl-i":
		return "tab", nil
	case "ctrl-m", "ctrl-j":
		return "enter", nil
	case "ctrl-h":
		return "backspace", nil
	}
	return mod + rest, nil
}
