package credential

import (
	"fmt"
	"strings"

	aicmd "github.com/npv12/zsh-ai-cmd"
)

var keyPages = map[string]string{
	"anthropic":  "https://console.anthropic.com/settings/keys",
	"openai":     "https://platform.openai.com/api-keys",
	"deepseek":   "https://platform.deepseek.com/api_keys",
	"openrouter": "https://openrouter.ai/keys",
	"gemini":     "https://aistudio.google.com/app/apikey",
}

// MissingKeyHelp returns the remediation notice for a provider whose key
// could not be resolved.
func MissingKeyHelp(cfg *aicmd.Config, provider string) string {
	id := aicmd.NormalizeProvider(provider)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s not set", SlotName(id))
	if page, ok := keyPages[id]; ok {
		fmt.Fprintf(&sb, " (get one at %s)", page)
	}
	sb.WriteString(": export it")
	if cfg != nil && cfg.KeychainService != "" {
		fmt.Fprintf(&sb, ", store it in the keychain as %q", Expand(cfg.KeychainService, id))
	}
	sb.WriteString(", or set key_command")
	return sb.String()
}
