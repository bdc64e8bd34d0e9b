// Package credential resolves provider API keys through an ordered chain of
// sources: process state, a custom retrieval command and the platform
// secret store. Resolved keys are cached for the process lifetime.
package credential

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/npv12/zsh-ai-cmd/sanitize"
	"github.com/zalando/go-keyring"
)

// ProviderPlaceholder is substituted in key_command and keychain_service.
const ProviderPlaceholder = "${provider}"

const keyCommandTimeout = 30 * time.Second

// Shell runs a command line and returns its standard output.
// A non-zero exit status is reported as an error.
type Shell interface {
	Output(ctx context.Context, command string) (string, error)
}

// SecretStore looks up a secret by service and account name.
type SecretStore interface {
	Get(service, account string) (string, error)
}

// Resolver looks up API keys for providers.
type Resolver struct {
	cfg       *aicmd.Config
	lookupEnv func(string) (string, bool)
	shell     Shell
	store     SecretStore
	onMissing func(provider string)

	mu    sync.Mutex
	cache *ttlcache.Cache[string, string] // slot name -> secret, never expires
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookupEnv replaces os.LookupEnv as the process state source.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(r *Resolver) { r.lookupEnv = fn }
}

// WithShell replaces the shell used to run key_command.
func WithShell(s Shell) Option {
	return func(r *Resolver) { r.shell = s }
}

// WithSecretStore replaces the platform secret store. nil disables it.
func WithSecretStore(s SecretStore) Option {
	return func(r *Resolver) { r.store = s }
}

// WithMissingHandler sets the callback invoked when every source fails.
func WithMissingHandler(fn func(provider string)) Option {
	return func(r *Resolver) { r.onMissing = fn }
}

// NewResolver creates a resolver for cfg.
func NewResolver(cfg *aicmd.Config, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:       cfg,
		lookupEnv: os.LookupEnv,
		shell:     &InterpShell{},
		store:     Keyring{},
		cache:     ttlcache.New[string, string](),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SlotName returns the canonical environment variable name for provider,
// e.g. "ANTHROPIC_API_KEY".
func SlotName(provider string) string {
	return strings.ToUpper(aicmd.NormalizeProvider(provider)) + "_API_KEY"
}

// Expand substitutes the lowercase provider id for ${provider} in template.
func Expand(template, provider string) string {
	return strings.ReplaceAll(template, ProviderPlaceholder, aicmd.NormalizeProvider(provider))
}

// Resolve returns the API key for provider. The second result is false only
// when every source has been exhausted; the missing handler has then been
// called. Providers flagged no_key resolve to an empty key.
func (r *Resolver) Resolve(ctx context.Context, provider string) (string, bool) {
	id := aicmd.NormalizeProvider(provider)
	if !r.keyRequired(id) {
		return "", true
	}
	slot := SlotName(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if key, ok := r.cached(slot); ok {
		return key, true
	}

	if key, ok := r.lookupEnv(slot); ok && key != "" {
		slog.Debug("credential resolved", "provider", id, "source", "env", "key_len", len(key))
		r.cache.Set(slot, key, ttlcache.NoTTL)
		return key, true
	}

	// Unconfigured ids never reach key_command or the keychain.
	if _, known := r.cfg.ProviderConfig(id); !known {
		slog.Debug("credential missing", "provider", id, "slot", slot, "configured", false)
		if r.onMissing != nil {
			r.onMissing(id)
		}
		return "", false
	}

	if key, ok := r.fromCommand(ctx, id); ok {
		r.cache.Set(slot, key, ttlcache.NoTTL)
		return key, true
	}

	if key, ok := r.fromStore(id); ok {
		r.cache.Set(slot, key, ttlcache.NoTTL)
		return key, true
	}

	slog.Debug("credential missing", "provider", id, "slot", slot)
	if r.onMissing != nil {
		r.onMissing(id)
	}
	return "", false
}

// Cached returns the key for provider if it has already been resolved,
// without consulting any source.
func (r *Resolver) Cached(provider string) (string, bool) {
	id := aicmd.NormalizeProvider(provider)
	if !r.keyRequired(id) {
		return "", true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cached(SlotName(id))
}

// Preset stores key for provider unless a key is already cached.
// An existing value is never overwritten.
func (r *Resolver) Preset(provider, key string) {
	if key == "" {
		return
	}
	slot := SlotName(provider)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cached(slot); !ok {
		r.cache.Set(slot, key, ttlcache.NoTTL)
	}
}

func (r *Resolver) cached(slot string) (string, bool) {
	item := r.cache.Get(slot)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

func (r *Resolver) keyRequired(id string) bool {
	pc, ok := r.cfg.ProviderConfig(id)
	return !ok || pc.KeyRequired()
}

// fromCommand runs key_command. Every failure falls through to the next
// source; only the outcome and the key length are logged.
func (r *Resolver) fromCommand(ctx context.Context, id string) (string, bool) {
	if r.cfg == nil || r.cfg.KeyCommand == "" || r.shell == nil {
		return "", false
	}
	command := Expand(r.cfg.KeyCommand, id)

	ctx, cancel := context.WithTimeout(ctx, keyCommandTimeout)
	defer cancel()

	out, err := r.shell.Output(ctx, command)
	key := sanitize.Sanitize(out)
	ok := err == nil && key != ""
	slog.Debug("credential command", "provider", id, "ok", ok, "key_len", len(key), "exit", exitStatus(err))
	if !ok {
		return "", false
	}
	return key, true
}

func (r *Resolver) fromStore(id string) (string, bool) {
	if r.cfg == nil || r.cfg.KeychainService == "" || r.store == nil {
		return "", false
	}
	service := Expand(r.cfg.KeychainService, id)
	key, err := r.store.Get(service, r.cfg.KeychainAccount)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("secret store lookup failed", "provider", id, "service", service, "error", err)
		}
		return "", false
	}
	key = sanitize.Sanitize(key)
	slog.Debug("credential resolved", "provider", id, "source", "keychain", "key_len", len(key))
	return key, key != ""
}
