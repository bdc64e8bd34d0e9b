// Package provider dispatches a natural-language request to one of the
// supported model backends and returns the raw command text it produced.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	aicmd "github.com/npv12/zsh-ai-cmd"
)

// RequestTimeout bounds every backend HTTP request.
const RequestTimeout = 30 * time.Second

// Backend performs one request against a model provider.
type Backend interface {
	Call(ctx context.Context, input, systemPrompt string) (string, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, input, systemPrompt string) (string, error)

// Call implements Backend.
func (f BackendFunc) Call(ctx context.Context, input, systemPrompt string) (string, error) {
	return f(ctx, input, systemPrompt)
}

// KeySource yields credentials that have already been resolved.
// credential.Resolver satisfies it.
type KeySource interface {
	Cached(provider string) (string, bool)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: RequestTimeout}
}

// apiKey returns the credential for id, or ErrCredentialMissing when the
// provider needs one and none has been resolved.
func apiKey(keys KeySource, id string, pc aicmd.ProviderConfig) (string, error) {
	if !pc.KeyRequired() {
		return "", nil
	}
	if keys != nil {
		if key, ok := keys.Cached(id); ok && key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: %s", aicmd.ErrCredentialMissing, id)
}

// truncate shortens a response body for error messages.
func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
