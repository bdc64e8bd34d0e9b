package credential

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/zalando/go-keyring"
)

type spyShell struct {
	mu       sync.Mutex
	out      string
	err      error
	commands []string
}

func (s *spyShell) Output(_ context.Context, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, command)
	return s.out, s.err
}

func (s *spyShell) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands)
}

type mapStore map[string]string

func (m mapStore) Get(service, account string) (string, error) {
	v, ok := m[service+"/"+account]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func noEnv(string) (string, bool) { return "", false }

func testConfig() *aicmd.Config {
	cfg := aicmd.DefaultConfig()
	cfg.KeyCommand = "pass show ${provider}/api-key"
	return cfg
}

func TestResolvePresetSkipsSources(t *testing.T) {
	shell := &spyShell{out: "from-command"}
	env := func(name string) (string, bool) {
		if name == "ANTHROPIC_API_KEY" {
			return "sk-preset", true
		}
		return "", false
	}
	r := NewResolver(testConfig(), WithLookupEnv(env), WithShell(shell), WithSecretStore(mapStore{}))

	key, ok := r.Resolve(context.Background(), "anthropic")
	if !ok || key != "sk-preset" {
		t.Fatalf("Resolve = %q, %v; want sk-preset, true", key, ok)
	}
	if shell.calls() != 0 {
		t.Errorf("key command ran %d times with a preset key", shell.calls())
	}
}

func TestResolveCommand(t *testing.T) {
	shell := &spyShell{out: "  sk-from-pass\x1b[0m\n"}
	r := NewResolver(testConfig(), WithLookupEnv(noEnv), WithShell(shell), WithSecretStore(mapStore{}))

	key, ok := r.Resolve(context.Background(), "OpenAI")
	if !ok || key != "sk-from-pass" {
		t.Fatalf("Resolve = %q, %v; want sk-from-pass, true", key, ok)
	}
	if len(shell.commands) != 1 || shell.commands[0] != "pass show openai/api-key" {
		t.Errorf("commands = %q", shell.commands)
	}

	// Cached: a second lookup must not run the command again.
	if key, ok := r.Resolve(context.Background(), "openai"); !ok || key != "sk-from-pass" {
		t.Errorf("second Resolve = %q, %v", key, ok)
	}
	if shell.calls() != 1 {
		t.Errorf("key command ran %d times, want 1", shell.calls())
	}
}

func TestResolveCommandFailureFallsThrough(t *testing.T) {
	tests := []struct {
		name  string
		shell *spyShell
	}{
		{"non-zero exit", &spyShell{out: "partial", err: errors.New("exit status 1")}},
		{"empty output", &spyShell{out: ""}},
		{"only control bytes", &spyShell{out: "\x1b[0m\r\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mapStore{"gemini-api-key/zsh-ai-cmd": "AIza-from-store"}
			r := NewResolver(testConfig(), WithLookupEnv(noEnv), WithShell(tt.shell), WithSecretStore(store))

			key, ok := r.Resolve(context.Background(), "gemini")
			if !ok || key != "AIza-from-store" {
				t.Errorf("Resolve = %q, %v; want AIza-from-store, true", key, ok)
			}
		})
	}
}

func TestResolveMissing(t *testing.T) {
	var missing []string
	r := NewResolver(testConfig(),
		WithLookupEnv(noEnv),
		WithShell(&spyShell{}),
		WithSecretStore(mapStore{}),
		WithMissingHandler(func(p string) { missing = append(missing, p) }),
	)

	key, ok := r.Resolve(context.Background(), "DeepSeek")
	if ok || key != "" {
		t.Fatalf("Resolve = %q, %v; want empty, false", key, ok)
	}
	if len(missing) != 1 || missing[0] != "deepseek" {
		t.Errorf("missing handler calls = %q, want [deepseek]", missing)
	}
}

func TestResolveNoKeyProvider(t *testing.T) {
	shell := &spyShell{}
	called := false
	r := NewResolver(testConfig(),
		WithLookupEnv(noEnv),
		WithShell(shell),
		WithSecretStore(nil),
		WithMissingHandler(func(string) { called = true }),
	)

	key, ok := r.Resolve(context.Background(), "ollama")
	if !ok || key != "" {
		t.Errorf("Resolve = %q, %v; want empty, true", key, ok)
	}
	if shell.calls() != 0 || called {
		t.Error("no_key provider consulted credential sources")
	}
}

func TestResolveCaseInsensitiveSlot(t *testing.T) {
	r := NewResolver(testConfig(), WithLookupEnv(noEnv), WithShell(&spyShell{}), WithSecretStore(nil))
	r.Preset("ANTHROPIC", "sk-one")

	for _, id := range []string{"anthropic", "Anthropic", " ANTHROPIC "} {
		if key, ok := r.Resolve(context.Background(), id); !ok || key != "sk-one" {
			t.Errorf("Resolve(%q) = %q, %v", id, key, ok)
		}
	}
}

func TestPresetNeverOverwrites(t *testing.T) {
	r := NewResolver(testConfig(), WithLookupEnv(noEnv), WithShell(&spyShell{}), WithSecretStore(nil))
	r.Preset("openai", "first")
	r.Preset("openai", "second")
	r.Preset("openai", "")

	if key, ok := r.Cached("openai"); !ok || key != "first" {
		t.Errorf("Cached = %q, %v; want first, true", key, ok)
	}
	if _, ok := r.Cached("gemini"); ok {
		t.Error("Cached(gemini) found a key that was never resolved")
	}
}

func TestResolveKeyring(t *testing.T) {
	keyring.MockInit()
	if err := keyring.Set("openrouter-api-key", "zsh-ai-cmd", "sk-or-keyring"); err != nil {
		t.Fatalf("keyring.Set: %v", err)
	}

	cfg := testConfig()
	cfg.KeyCommand = ""
	r := NewResolver(cfg, WithLookupEnv(noEnv), WithSecretStore(Keyring{}))

	if key, ok := r.Resolve(context.Background(), "openrouter"); !ok || key != "sk-or-keyring" {
		t.Errorf("Resolve = %q, %v; want sk-or-keyring, true", key, ok)
	}
	if _, ok := r.Resolve(context.Background(), "openai"); ok {
		t.Error("Resolve(openai) found a key that is not stored")
	}
}

func TestSlotNameAndExpand(t *testing.T) {
	if got := SlotName("OpenRouter"); got != "OPENROUTER_API_KEY" {
		t.Errorf("SlotName = %q", got)
	}
	if got := Expand("op read op://vault/${provider}/key", "Gemini"); got != "op read op://vault/gemini/key" {
		t.Errorf("Expand = %q", got)
	}
	if got := Expand("no placeholder", "gemini"); got != "no placeholder" {
		t.Errorf("Expand without placeholder = %q", got)
	}
}

func TestMissingKeyHelp(t *testing.T) {
	msg := MissingKeyHelp(aicmd.DefaultConfig(), "Anthropic")
	for _, want := range []string{"ANTHROPIC_API_KEY", "console.anthropic.com", `"anthropic-api-key"`, "key_command"} {
		if !strings.Contains(msg, want) {
			t.Errorf("MissingKeyHelp = %q, missing %q", msg, want)
		}
	}
}

func TestInterpShell(t *testing.T) {
	shell := &InterpShell{Env: []string{"SECRET=sk-env-value"}}

	out, err := shell.Output(context.Background(), `echo "$SECRET"`)
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if out != "sk-env-value\n" {
		t.Errorf("Output = %q", out)
	}

	_, err = shell.Output(context.Background(), "echo partial; exit 3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if got := exitStatus(err); got != 3 {
		t.Errorf("exitStatus = %d, want 3", got)
	}

	if _, err := shell.Output(context.Background(), "echo 'unterminated"); err == nil {
		t.Error("expected parse error")
	}
}

func TestResolveWithInterpShell(t *testing.T) {
	cfg := testConfig()
	cfg.KeyCommand = `echo "  key-for-${provider}  "`
	r := NewResolver(cfg, WithLookupEnv(noEnv), WithShell(&InterpShell{Env: []string{}}), WithSecretStore(nil))

	key, ok := r.Resolve(context.Background(), "anthropic")
	if !ok || key != "key-for-anthropic" {
		t.Errorf("Resolve = %q, %v; want key-for-anthropic, true", key, ok)
	}
}

func captureDebugLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestResolveNeverLogsSecret(t *testing.T) {
	const (
		commandKey  = "sk-from-command-7f3a9c"
		keychainKey = "sk-from-keychain-51b2e8"
		envKey      = "sk-from-env-0d44aa"
	)
	tests := []struct {
		name  string
		shell *spyShell
		store mapStore
		env   func(string) (string, bool)
		want  string
	}{
		{"command", &spyShell{out: commandKey + "\n"}, mapStore{}, noEnv, commandKey},
		{"command fails then keychain", &spyShell{out: "partial-" + commandKey, err: errors.New("exit status 1")},
			mapStore{"anthropic-api-key/zsh-ai-cmd": keychainKey}, noEnv, keychainKey},
		{"env", &spyShell{}, mapStore{}, func(name string) (string, bool) {
			if name == "ANTHROPIC_API_KEY" {
				return envKey, true
			}
			return "", false
		}, envKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureDebugLog(t)
			r := NewResolver(testConfig(), WithLookupEnv(tt.env), WithShell(tt.shell), WithSecretStore(tt.store))

			key, ok := r.Resolve(context.Background(), "anthropic")
			if !ok || key != tt.want {
				t.Fatalf("Resolve = %q, %v; want %q", key, ok, tt.want)
			}

			out := logs.String()
			for _, secret := range []string{commandKey, keychainKey, envKey} {
				if strings.Contains(out, secret) {
					t.Errorf("debug log contains secret %q:\n%s", secret, out)
				}
			}
			if !strings.Contains(out, "key_len=") {
				t.Errorf("debug log has no key_len attribute:\n%s", out)
			}
		})
	}
}

func TestResolveUnconfiguredProviderSkipsCommand(t *testing.T) {
	shell := &spyShell{out: "sk-should-not-run"}
	store := mapStore{"$(id)-api-key/zsh-ai-cmd": "sk-should-not-read"}
	var missing []string
	r := NewResolver(testConfig(),
		WithLookupEnv(noEnv),
		WithShell(shell),
		WithSecretStore(store),
		WithMissingHandler(func(id string) { missing = append(missing, id) }),
	)

	key, ok := r.Resolve(context.Background(), "$(id)")
	if ok || key != "" {
		t.Fatalf("Resolve = %q, %v; want not found", key, ok)
	}
	if shell.calls() != 0 {
		t.Errorf("key command ran for an unconfigured provider: %q", shell.commands)
	}
	if len(missing) != 1 || missing[0] != "$(id)" {
		t.Errorf("missing handler calls = %q", missing)
	}
}
