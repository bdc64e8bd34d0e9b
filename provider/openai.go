package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAICompatible calls a chat completions endpoint through the openai-go
// SDK. It serves openai, deepseek, openrouter and any user-defined provider
// with a base_url.
type OpenAICompatible struct {
	id     string
	cfg    aicmd.ProviderConfig
	keys   KeySource
	client *http.Client
}

// NewOpenAICompatible creates a chat completions backend for provider id.
func NewOpenAICompatible(id string, pc aicmd.ProviderConfig, keys KeySource) *OpenAICompatible {
	return &OpenAICompatible{
		id:     aicmd.NormalizeProvider(id),
		cfg:    pc,
		keys:   keys,
		client: newHTTPClient(),
	}
}

// Call implements Backend.
func (o *OpenAICompatible) Call(ctx context.Context, input, systemPrompt string) (string, error) {
	key, err := apiKey(o.keys, o.id, o.cfg)
	if err != nil {
		return "", err
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(o.client),
		option.WithMaxRetries(0),
		option.WithBaseURL(o.cfg.BaseURL),
	}
	if key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if o.id == "openrouter" {
		opts = append(opts,
			option.WithHeader("X-Title", "zsh-ai-cmd"),
			option.WithHeader("HTTP-Referer", "https://github.com/npv12/zsh-ai-cmd"),
		)
	}
	client := openai.NewClient(opts...)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(input),
		},
	}
	if o.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.cfg.MaxTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return "", fmt.Errorf("API error (status %d): %w", apierr.StatusCode, err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return ExtractCommand(resp.Choices[0].Message.Content), nil
}
