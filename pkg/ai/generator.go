package ai

import (
	"context"
	"net/http"
)

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ClientOption customizes provider HTTP clients.
type ClientOption func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	baseURL    string
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithBaseURL overrides the provider base URL.
func WithBaseURL(url string) ClientOption {
	return func(o *clientOptions) { o.baseURL = url }
}

func applyClientOptions(opts []ClientOption) clientOptions {
	var o clientOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
