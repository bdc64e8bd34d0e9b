package suggest

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	aicmd "github.com/npv12/zsh-ai-cmd"
	defaults "github.com/npv12/zsh-ai-cmd/default"
)

// PromptData holds the data passed to the system prompt template.
type PromptData struct {
	OS             string
	Shell          string
	Cwd            string
	Listing        string
	PackageManager string
	Manifests      map[string]string
}

// loadCustomPrompt returns the user's prompt template, or "" if none exists.
func loadCustomPrompt(cfg *aicmd.Config) string {
	path := aicmd.PromptPath(cfg)
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	slog.Debug("loaded custom prompt", "path", path)
	return string(data)
}

// renderPrompt executes tmplSrc with data, falling back to the built-in
// prompt when the custom template is broken.
func renderPrompt(tmplSrc string, data PromptData) string {
	if tmplSrc == "" {
		tmplSrc = defaults.DefaultPrompt
	}

	var buf strings.Builder
	t, err := template.New("prompt").Parse(tmplSrc)
	if err == nil {
		err = t.Execute(&buf, data)
	}
	if err != nil {
		slog.Warn("invalid prompt template, falling back to default", "error", err)
		buf.Reset()
		t = template.Must(template.New("prompt").Parse(defaults.DefaultPrompt))
		t.Execute(&buf, data)
	}
	return strings.TrimRight(buf.String(), " \t\n")
}

func osName() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS"
	case "linux":
		return "Linux"
	default:
		return runtime.GOOS
	}
}

func shellName() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return filepath.Base(sh)
	}
	return "zsh"
}
