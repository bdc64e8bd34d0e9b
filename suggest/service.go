package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/npv12/zsh-ai-cmd/credential"
	"github.com/npv12/zsh-ai-cmd/sanitize"
)

// Keys resolves provider credentials. credential.Resolver satisfies it.
type Keys interface {
	Resolve(ctx context.Context, provider string) (string, bool)
}

// Dispatcher sends a request to a provider backend. provider.Dispatcher
// satisfies it.
type Dispatcher interface {
	Has(provider string) bool
	Dispatch(ctx context.Context, provider, input, systemPrompt string) (string, error)
}

// Service turns a buffer into a sanitized command suggestion. It is shared
// by the engine, the daemon and the one-shot CLI and is safe for concurrent
// use.
type Service struct {
	cfg          *aicmd.Config
	keys         Keys
	dispatcher   Dispatcher
	customPrompt string
	dirs         *DirCache
	getwd        func() (string, error)
}

// NewService creates a service for cfg. The custom prompt file is read once.
func NewService(cfg *aicmd.Config, keys Keys, dispatcher Dispatcher) *Service {
	return &Service{
		cfg:          cfg,
		keys:         keys,
		dispatcher:   dispatcher,
		customPrompt: loadCustomPrompt(cfg),
		dirs:         NewDirCache(),
		getwd:        os.Getwd,
	}
}

// Provider returns the configured provider id.
func (s *Service) Provider() string {
	return s.cfg.Provider
}

// CheckKey resolves the credential for the configured provider.
func (s *Service) CheckKey(ctx context.Context) error {
	return s.checkKey(ctx, s.cfg.Provider)
}

func (s *Service) checkKey(ctx context.Context, provider string) error {
	if !s.dispatcher.Has(provider) {
		return fmt.Errorf("%w: unknown provider %q", aicmd.ErrConfig, provider)
	}
	if _, ok := s.keys.Resolve(ctx, provider); !ok {
		return fmt.Errorf("%w: %s", aicmd.ErrCredentialMissing, credential.MissingKeyHelp(s.cfg, provider))
	}
	return nil
}

// Complete returns a suggestion for input from the configured provider.
func (s *Service) Complete(ctx context.Context, input string) (string, error) {
	return s.CompleteWith(ctx, s.cfg.Provider, input)
}

// CompleteWith returns a suggestion for input from provider. An empty
// provider means the configured one.
func (s *Service) CompleteWith(ctx context.Context, provider, input string) (string, error) {
	if provider == "" {
		provider = s.cfg.Provider
	}
	provider = aicmd.NormalizeProvider(provider)

	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("%w: empty input", aicmd.ErrEmptyResult)
	}
	if err := s.checkKey(ctx, provider); err != nil {
		return "", err
	}

	raw, err := s.dispatcher.Dispatch(ctx, provider, input, s.SystemPrompt())
	if err != nil {
		return "", err
	}
	suggestion := sanitize.Sanitize(raw)
	if suggestion == "" {
		return "", aicmd.ErrEmptyResult
	}
	slog.Debug("suggestion", "provider", provider, "suggestion", sanitize.RedactCommand(suggestion))
	return suggestion, nil
}

// SystemPrompt renders the system prompt for the current working directory.
func (s *Service) SystemPrompt() string {
	data := PromptData{OS: osName(), Shell: shellName()}
	if cwd, err := s.getwd(); err == nil {
		data.Cwd = cwd
		dir := s.dirs.Get(cwd)
		data.Listing = dir.Listing
		data.PackageManager = dir.PackageManager
		data.Manifests = dir.Manifests
	}
	return renderPrompt(s.customPrompt, data)
}
