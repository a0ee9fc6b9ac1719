// Package ai turns an analysis result into a short narrative report using a
// hosted (OpenRouter) or local (Ollama) chat model.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the provider-neutral chat request.
type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Usage is the token accounting reported by the provider, when it reports one.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResponse is the provider-neutral reply.
type GenerateResponse struct {
	Content   string
	Usage     Usage
	RequestID string
}

// Runtime generates a complete reply.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// StreamRuntime additionally streams partial content to onDelta.
type StreamRuntime interface {
	Runtime
	GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error
}

const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// RuntimeConfig selects and tunes a provider.
type RuntimeConfig struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	Retry     RetryPolicy
	OllamaURL string
}

// NormalizeProvider maps accepted aliases to a provider name. Empty means OpenRouter.
func NormalizeProvider(p string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "", ProviderOpenRouter, "openai", "anthropic", "google", "meta":
		return ProviderOpenRouter, nil
	case ProviderOllama, "local":
		return ProviderOllama, nil
	}
	return "", fmt.Errorf("unknown ai provider %q (want %s or %s)", p, ProviderOpenRouter, ProviderOllama)
}

// NewRuntime builds the runtime cfg.Provider names.
func NewRuntime(cfg RuntimeConfig) (StreamRuntime, error) {
	p, err := NormalizeProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if p == ProviderOllama {
		return NewOllama(cfg.OllamaURL, cfg.Timeout, cfg.Retry), nil
	}
	c := NewOpenRouter(cfg.APIKey, cfg.Timeout, cfg.Retry)
	if cfg.BaseURL != "" {
		c.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return c, nil
}
