package aicmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	defaults "github.com/npv12/zsh-ai-cmd/default"
)

// Config represents the user's zsh-ai-cmd configuration. It is loaded once
// at startup and must not be mutated afterwards.
type Config struct {
	Provider        string                    `toml:"provider"`
	TriggerKey      string                    `toml:"trigger_key"`
	AcceptKeys      []string                  `toml:"accept_keys"`
	Debug           bool                      `toml:"debug"`
	DebugLog        string                    `toml:"debug_log"`
	KeyCommand      string                    `toml:"key_command"`
	KeychainService string                    `toml:"keychain_service"`
	KeychainAccount string                    `toml:"keychain_account"`
	PromptFile      string                    `toml:"prompt_file"`
	Providers       map[string]ProviderConfig `toml:"providers"`
}

// ProviderConfig holds per-provider request settings.
type ProviderConfig struct {
	Model     string `toml:"model"`
	BaseURL   string `toml:"base_url"`
	NoKey     *bool  `toml:"no_key,omitempty"`
	MaxTokens int    `toml:"max_tokens,omitempty"`
}

// KeyRequired reports whether the provider needs a credential.
func (p ProviderConfig) KeyRequired() bool {
	return p.NoKey == nil || !*p.NoKey
}

// NormalizeProvider returns the canonical lowercase form of a provider id.
func NormalizeProvider(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ProviderConfig returns the settings for the given provider id, matched
// case-insensitively.
func (c *Config) ProviderConfig(id string) (ProviderConfig, bool) {
	if c == nil {
		return ProviderConfig{}, false
	}
	pc, ok := c.Providers[NormalizeProvider(id)]
	return pc, ok
}

// ProviderIDs returns the configured provider ids in sorted order.
func (c *Config) ProviderIDs() []string {
	ids := make([]string, 0, len(c.Providers))
	for id := range c.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConfigDir returns the config directory path.
// Resolution order: $ZSH_AI_CMD_CONFIG_DIR > $XDG_CONFIG_HOME/zsh-ai-cmd > ~/.config/zsh-ai-cmd
func ConfigDir() string {
	if dir := os.Getenv("ZSH_AI_CMD_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "zsh-ai-cmd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "zsh-ai-cmd-config")
	}
	return filepath.Join(home, ".config", "zsh-ai-cmd")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// PromptPath returns the prompt file path, honouring prompt_file when set.
func PromptPath(cfg *Config) string {
	if cfg != nil && cfg.PromptFile != "" {
		return cfg.PromptFile
	}
	return filepath.Join(ConfigDir(), "prompt.md")
}

// DefaultDebugLogPath returns the debug log location used when debug_log is unset.
// Resolution order: $XDG_STATE_HOME/zsh-ai-cmd > ~/.local/state/zsh-ai-cmd > /tmp
func DefaultDebugLogPath() string {
	if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
		return filepath.Join(stateHome, "zsh-ai-cmd", "debug.log")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", fmt.Sprintf("zsh-ai-cmd-%d.log", os.Getuid()))
	}
	return filepath.Join(home, ".local", "state", "zsh-ai-cmd", "debug.log")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(defaults.DefaultConfigTOML, &cfg); err != nil {
		panic("aicmd: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from the default path, or returns defaults if not
// found. Environment overrides are applied in both cases.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

// LoadConfigFrom loads config from path. A missing file is not an error.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}

	mergeDefaults(&cfg, DefaultConfig())
	applyEnv(&cfg)
	return &cfg, nil
}

// mergeDefaults fills fields missing from cfg with values from defaults.
func mergeDefaults(cfg, defaults *Config) {
	if cfg.Provider == "" {
		cfg.Provider = defaults.Provider
	}
	if cfg.TriggerKey == "" {
		cfg.TriggerKey = defaults.TriggerKey
	}
	if len(cfg.AcceptKeys) == 0 {
		cfg.AcceptKeys = defaults.AcceptKeys
	}
	if cfg.KeychainService == "" {
		cfg.KeychainService = defaults.KeychainService
	}
	if cfg.KeychainAccount == "" {
		cfg.KeychainAccount = defaults.KeychainAccount
	}

	// Normalize provider table keys so lookups are case-insensitive.
	providers := make(map[string]ProviderConfig, len(cfg.Providers)+len(defaults.Providers))
	for id, pc := range cfg.Providers {
		providers[NormalizeProvider(id)] = pc
	}
	for id, def := range defaults.Providers {
		pc, ok := providers[id]
		if !ok {
			providers[id] = def
			continue
		}
		if pc.Model == "" {
			pc.Model = def.Model
		}
		if pc.BaseURL == "" {
			pc.BaseURL = def.BaseURL
		}
		if pc.NoKey == nil {
			pc.NoKey = def.NoKey
		}
		if pc.MaxTokens == 0 {
			pc.MaxTokens = def.MaxTokens
		}
		providers[id] = pc
	}
	cfg.Providers = providers
}

// applyEnv applies ZSH_AI_CMD_* environment overrides. Env wins over file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ZSH_AI_CMD_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	cfg.Provider = NormalizeProvider(cfg.Provider)
	if v := os.Getenv("ZSH_AI_CMD_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("ZSH_AI_CMD_DEBUG_LOG"); v != "" {
		cfg.DebugLog = v
	}
	if v := os.Getenv("ZSH_AI_CMD_KEY_COMMAND"); v != "" {
		cfg.KeyCommand = v
	}
	if v := os.Getenv("ZSH_AI_CMD_KEYCHAIN_SERVICE"); v != "" {
		cfg.KeychainService = v
	}
	if v := os.Getenv("ZSH_AI_CMD_TRIGGER_KEY"); v != "" {
		cfg.TriggerKey = v
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	for id, pc := range cfg.Providers {
		prefix := "ZSH_AI_CMD_" + strings.ToUpper(id) + "_"
		if v := os.Getenv(prefix + "MODEL"); v != "" {
			pc.Model = v
		}
		if v := os.Getenv(prefix + "BASE_URL"); v != "" {
			pc.BaseURL = v
		}
		cfg.Providers[id] = pc
	}
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	pc, ok := cfg.ProviderConfig(cfg.Provider)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("provider %q is not configured; requests will fail", cfg.Provider))
	} else if pc.Model == "" {
		warnings = append(warnings, fmt.Sprintf("provider %q has no model configured", cfg.Provider))
	}
	if len(cfg.AcceptKeys) == 0 {
		warnings = append(warnings, "accept_keys is empty; suggestions cannot be accepted")
	}
	if cfg.TriggerKey == "" {
		warnings = append(warnings, "trigger_key is empty; suggestions cannot be requested")
	}
	return warnings
}
