package sanitize

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

const (
	redactedValue = "***"
	redactedParam = "REDACTED"
)

// plainVars expand to paths and user settings, never to credentials.
var plainVars = map[string]bool{
	"HOME": true, "PWD": true, "OLDPWD": true, "USER": true, "LOGNAME": true,
	"SHELL": true, "PATH": true, "TERM": true, "EDITOR": true, "PAGER": true,
	"TMPDIR": true, "LANG": true, "HOSTNAME": true, "COLUMNS": true, "LINES": true,
}

var (
	// Provider key prefixes as pasted into a request or echoed in a command.
	reKeyToken = regexp.MustCompile(`\b(sk-ant-|sk-or-|sk-|AIza|ghp_|xox[bp]-)[A-Za-z0-9_\-]{12,}`)

	// "api_key=...", "token: ...", "my secret is ..." in commands or prose.
	reLabelled = regexp.MustCompile(`(?i)\b((?:[a-z0-9]+[_-])*(?:api[_-]?key|token|secret|passw(?:or)?d))(\s*[:=]\s*|\s+is\s+)([^\s'",;]+)`)

	// Fallback for text the shell parser rejects.
	reShellRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)|\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)
)

// keepParam reports whether a parameter expansion may appear in a log as is.
func keepParam(name string) bool {
	if plainVars[name] || strings.HasPrefix(name, "XDG_") || strings.HasPrefix(name, "LC_") {
		return true
	}
	if len(name) == 1 && strings.Contains("?!#@*$-_", name) {
		return true
	}
	return name != "" && strings.Trim(name, "0123456789") == ""
}

// RedactCommand prepares a shell command or a natural-language request for
// the debug log and outcome records. Key-shaped tokens and labelled secrets
// are masked first; then expansions of non-plain variables and assignment
// values are replaced. Text that does not parse as shell is handled by
// pattern matching.
func RedactCommand(cmd string) string {
	cmd = maskSecrets(cmd)

	prog, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(cmd), "")
	if err != nil {
		return redactShellRefs(cmd)
	}

	changed := false
	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			if n.Param != nil && !keepParam(n.Param.Value) {
				n.Param.Value = redactedParam
				changed = true
			}
		case *syntax.Assign:
			if n.Name != nil && n.Value != nil && !plainVars[n.Name.Value] {
				n.Value.Parts = []syntax.WordPart{&syntax.Lit{Value: redactedValue}}
				changed = true
			}
		}
		return true
	})
	if !changed {
		return cmd
	}

	var buf bytes.Buffer
	if err := syntax.NewPrinter(syntax.Indent(0)).Print(&buf, prog); err != nil {
		return redactShellRefs(cmd)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// maskSecrets hides literal credentials, keeping a recognizable prefix.
func maskSecrets(s string) string {
	s = reKeyToken.ReplaceAllString(s, "${1}"+redactedValue)
	return reLabelled.ReplaceAllStringFunc(s, func(m string) string {
		sub := reLabelled.FindStringSubmatch(m)
		if strings.HasSuffix(sub[3], redactedValue) {
			return m
		}
		return sub[1] + sub[2] + redactedValue
	})
}

func redactShellRefs(s string) string {
	return reShellRef.ReplaceAllStringFunc(s, func(m string) string {
		sub := reShellRef.FindStringSubmatch(m)
		switch {
		case sub[1] != "":
			if keepParam(sub[1]) {
				return m
			}
			return "${" + redactedParam + "}"
		case sub[2] != "":
			if keepParam(sub[2]) {
				return m
			}
			return "$" + redactedParam
		default:
			if plainVars[sub[3]] || strings.HasSuffix(sub[4], redactedValue) {
				return m
			}
			return sub[3] + "=" + redactedValue
		}
	})
}
