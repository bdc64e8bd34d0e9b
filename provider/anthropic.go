package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	aicmd "github.com/npv12/zsh-ai-cmd"
)

const anthropicVersion = "2023-06-01"

// Anthropic calls the Anthropic Messages API.
type Anthropic struct {
	cfg    aicmd.ProviderConfig
	keys   KeySource
	client *http.Client
}

// NewAnthropic creates the anthropic backend.
func NewAnthropic(pc aicmd.ProviderConfig, keys KeySource) *Anthropic {
	return &Anthropic{cfg: pc, keys: keys, client: newHTTPClient()}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Type    string             `json:"type"`
	Content []anthropicContent `json:"content"`
	Error   *apiError          `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// apiError is the error envelope shared by the Anthropic and
// OpenAI-style APIs.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Call implements Backend.
func (a *Anthropic) Call(ctx context.Context, input, systemPrompt string) (string, error) {
	key, err := apiKey(a.keys, "anthropic", a.cfg)
	if err != nil {
		return "", err
	}

	maxTokens := a.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}
	data, err := json.Marshal(anthropicRequest{
		Model:     a.cfg.Model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: input}},
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var result anthropicResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(body))
		}
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	// The error envelope takes precedence over any payload.
	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(body))
	}

	for _, c := range result.Content {
		if c.Type == "text" {
			return ExtractCommand(c.Text), nil
		}
	}
	return "", nil
}
