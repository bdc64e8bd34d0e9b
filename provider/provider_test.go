package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	aicmd "github.com/npv12/zsh-ai-cmd"
)

type staticKeys map[string]string

func (k staticKeys) Cached(provider string) (string, bool) {
	v, ok := k[provider]
	return v, ok
}

func TestDispatchUnknownProvider(t *testing.T) {
	d := NewDispatcher(aicmd.DefaultConfig(), staticKeys{})
	_, err := d.Dispatch(context.Background(), "nonexistent", "list files", "sys")
	if !errors.Is(err, aicmd.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if errors.Is(err, aicmd.ErrBackend) {
		t.Error("unknown provider must not be reported as a backend error")
	}
}

func TestDispatchRoutesCaseInsensitive(t *testing.T) {
	d := &Dispatcher{backends: make(map[string]Backend)}
	var gotInput, gotPrompt string
	d.Register("Custom", BackendFunc(func(_ context.Context, input, systemPrompt string) (string, error) {
		gotInput, gotPrompt = input, systemPrompt
		return "ls -la", nil
	}))

	out, err := d.Dispatch(context.Background(), "CUSTOM", "list files", "be terse")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out != "ls -la" || gotInput != "list files" || gotPrompt != "be terse" {
		t.Errorf("out=%q input=%q prompt=%q", out, gotInput, gotPrompt)
	}
	if !d.Has("custom") {
		t.Error("Has(custom) = false")
	}
}

func TestDispatchWrapsBackendError(t *testing.T) {
	d := &Dispatcher{backends: make(map[string]Backend)}
	d.Register("broken", BackendFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("connection refused")
	}))

	_, err := d.Dispatch(context.Background(), "broken", "x", "")
	if !errors.Is(err, aicmd.ErrBackend) {
		t.Fatalf("err = %v, want ErrBackend", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v, want cause preserved", err)
	}
}

func TestNewDispatcherRegistersBuiltins(t *testing.T) {
	cfg := aicmd.DefaultConfig()
	cfg.Providers["groq"] = aicmd.ProviderConfig{Model: "llama", BaseURL: "https://api.groq.com/openai/v1/"}
	cfg.Providers["nourl"] = aicmd.ProviderConfig{Model: "x"}

	d := NewDispatcher(cfg, staticKeys{})
	for _, id := range []string{"anthropic", "openai", "deepseek", "openrouter", "gemini", "ollama", "groq"} {
		if !d.Has(id) {
			t.Errorf("backend %q not registered", id)
		}
	}
	if d.Has("nourl") {
		t.Error("provider without base_url was registered")
	}
}

func TestAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Errorf("x-api-key = %q", got)
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header missing")
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.System != "sys" || len(req.Messages) != 1 || req.Messages[0].Content != "list files" {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"type":"message","content":[{"type":"text","text":"` + "```sh\\nls -la\\n```" + `"}]}`))
	}))
	defer srv.Close()

	a := NewAnthropic(aicmd.ProviderConfig{Model: "m", BaseURL: srv.URL}, staticKeys{"anthropic": "sk-ant-test"})
	out, err := a.Call(context.Background(), "list files", "sys")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != "ls -la" {
		t.Errorf("out = %q, want ls -la", out)
	}
}

func TestAnthropicErrorEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"envelope with 200", 200, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"},"content":[{"type":"text","text":"ls"}]}`, "Overloaded"},
		{"envelope with 401", 401, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, "invalid x-api-key"},
		{"non-json 502", 502, `bad gateway`, "status 502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewAnthropic(aicmd.ProviderConfig{Model: "m", BaseURL: srv.URL}, staticKeys{"anthropic": "k"})
			_, err := a.Call(context.Background(), "x", "")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestAnthropicMissingKey(t *testing.T) {
	a := NewAnthropic(aicmd.ProviderConfig{Model: "m", BaseURL: "http://127.0.0.1:1"}, staticKeys{})
	_, err := a.Call(context.Background(), "x", "")
	if !errors.Is(err, aicmd.ErrCredentialMissing) {
		t.Errorf("err = %v, want ErrCredentialMissing", err)
	}
}

func TestAnthropicContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	a := NewAnthropic(aicmd.ProviderConfig{Model: "m", BaseURL: srv.URL}, staticKeys{"anthropic": "k"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.Call(ctx, "x", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("call was not bounded by the context")
	}
}

func TestGemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "AIza-test" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "sys" {
			t.Errorf("systemInstruction = %+v", req.SystemInstruction)
		}
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"git "},{"text":"status\n"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini(aicmd.ProviderConfig{Model: "gemini-test", BaseURL: srv.URL}, staticKeys{"gemini": "AIza-test"})
	out, err := g.Call(context.Background(), "show repo state", "sys")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != "git status" {
		t.Errorf("out = %q", out)
	}
}

func TestGeminiErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	g := NewGemini(aicmd.ProviderConfig{Model: "m", BaseURL: srv.URL}, staticKeys{"gemini": "bad"})
	_, err := g.Call(context.Background(), "x", "")
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("err = %v", err)
	}
}

func TestOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("ollama request carried a credential")
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Stream {
			t.Error("stream = true")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"df -h"},"done":true}`))
	}))
	defer srv.Close()

	o := NewOllama(aicmd.ProviderConfig{Model: "llama3.2", BaseURL: srv.URL})
	out, err := o.Call(context.Background(), "disk usage", "sys")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != "df -h" {
		t.Errorf("out = %q", out)
	}
}

func TestOllamaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"nope\" not found"}`))
	}))
	defer srv.Close()

	o := NewOllama(aicmd.ProviderConfig{Model: "nope", BaseURL: srv.URL})
	_, err := o.Call(context.Background(), "x", "")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v", err)
	}
}

func TestOpenAICompatible(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "gpt-test" || len(req.Messages) != 2 || req.Messages[1].Content != "list files" {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"` + "`ls -la`" + `"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAICompatible("openai", aicmd.ProviderConfig{Model: "gpt-test", BaseURL: srv.URL + "/v1/"}, staticKeys{"openai": "sk-test"})
	out, err := o.Call(context.Background(), "list files", "sys")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != "ls -la" {
		t.Errorf("out = %q", out)
	}
}

func TestOpenAICompatibleAPIError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer srv.Close()

	o := NewOpenAICompatible("deepseek", aicmd.ProviderConfig{Model: "m", BaseURL: srv.URL + "/v1/"}, staticKeys{"deepseek": "k"})
	_, err := o.Call(context.Background(), "x", "")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status 429", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", n)
	}
}

func TestExtractCommand(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "ls -la", "ls -la"},
		{"surrounding whitespace", "\n  ls -la  \n", "ls -la"},
		{"fenced block", "```bash\nfind . -name '*.go'\n```", "find . -name '*.go'"},
		{"fenced with prose", "Here you go:\n```\ndu -sh *\n```\nThis shows sizes.", "du -sh *"},
		{"inline backticks", "`git status`", "git status"},
		{"inline triple backticks", "```ls```", "ls"},
		{"prompt prefix", "$ echo hi", "echo hi"},
		{"multiple lines", "ls\npwd", "ls"},
		{"empty", "   ", ""},
		{"empty fence", "```\n```", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCommand(tt.in); got != tt.want {
				t.Errorf("ExtractCommand(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDispatchNeverLogsKey(t *testing.T) {
	const secret = "sk-ant-api03-secret-9c1e77"

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	fail := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != secret {
			t.Errorf("x-api-key = %q", got)
		}
		if fail.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
			return
		}
		w.Write([]byte(`{"type":"message","content":[{"type":"text","text":"ls -la"}]}`))
	}))
	defer srv.Close()

	cfg := aicmd.DefaultConfig()
	pc := cfg.Providers["anthropic"]
	pc.BaseURL = srv.URL
	cfg.Providers["anthropic"] = pc
	d := NewDispatcher(cfg, staticKeys{"anthropic": secret})

	if out, err := d.Dispatch(context.Background(), "anthropic", "list files", "sys"); err != nil || out != "ls -la" {
		t.Fatalf("Dispatch = %q, %v", out, err)
	}
	fail.Store(true)
	if _, err := d.Dispatch(context.Background(), "anthropic", "list files", "sys"); !errors.Is(err, aicmd.ErrBackend) {
		t.Fatalf("err = %v, want ErrBackend", err)
	}

	out := buf.String()
	if strings.Contains(out, secret) {
		t.Errorf("debug log contains the api key:\n%s", out)
	}
	if !strings.Contains(out, "provider=anthropic") {
		t.Errorf("expected backend calls in the debug log:\n%s", out)
	}
}
