package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/npv12/zsh-ai-cmd/sanitize"
)

// Dispatcher routes requests to backends by provider id.
type Dispatcher struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewDispatcher creates a dispatcher with a backend for every provider in
// cfg. Providers other than the built-in ones are treated as
// OpenAI-compatible endpoints and need a base_url.
func NewDispatcher(cfg *aicmd.Config, keys KeySource) *Dispatcher {
	d := &Dispatcher{backends: make(map[string]Backend)}
	if cfg == nil {
		return d
	}
	for _, id := range cfg.ProviderIDs() {
		pc, _ := cfg.ProviderConfig(id)
		switch id {
		case "anthropic":
			d.Register(id, NewAnthropic(pc, keys))
		case "gemini":
			d.Register(id, NewGemini(pc, keys))
		case "ollama":
			d.Register(id, NewOllama(pc))
		default:
			if pc.BaseURL == "" {
				slog.Warn("provider has no base_url, skipping", "provider", id)
				continue
			}
			d.Register(id, NewOpenAICompatible(id, pc, keys))
		}
	}
	return d
}

// Register installs b under id, replacing any existing backend.
func (d *Dispatcher) Register(id string, b Backend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backends[aicmd.NormalizeProvider(id)] = b
}

// Has reports whether a backend is registered for id.
func (d *Dispatcher) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.backends[aicmd.NormalizeProvider(id)]
	return ok
}

// Dispatch sends input to the backend for id. An unknown id fails with
// ErrConfig before any network activity; backend failures wrap ErrBackend.
func (d *Dispatcher) Dispatch(ctx context.Context, id, input, systemPrompt string) (string, error) {
	id = aicmd.NormalizeProvider(id)
	d.mu.RLock()
	b, ok := d.backends[id]
	d.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: unknown provider %q", aicmd.ErrConfig, id)
	}

	start := time.Now()
	out, err := b.Call(ctx, input, systemPrompt)
	if err != nil {
		slog.Debug("backend call failed", "provider", id, "elapsed", time.Since(start), "error", err)
		return "", fmt.Errorf("%w: %s: %w", aicmd.ErrBackend, id, err)
	}
	slog.Debug("backend call",
		"provider", id,
		"elapsed", time.Since(start),
		"input", sanitize.RedactCommand(input),
		"output", sanitize.RedactCommand(out),
	)
	return out, nil
}
