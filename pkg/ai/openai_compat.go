package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatGenerator talks to any /chat/completions endpoint that follows
// the OpenAI schema, hosted or self-run.
type OpenAICompatGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatGenerator expects baseURL to include the version prefix,
// e.g. "http://localhost:8000/v1". An empty apiKey sends no Authorization.
func NewOpenAICompatGenerator(baseURL, apiKey, model string, opts ...ClientOption) *OpenAICompatGenerator {
	g := &OpenAICompatGenerator{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	if o := applyClientOptions(opts); o.httpClient != nil {
		g.httpClient = o.httpClient
	}
	return g
}

func (g *OpenAICompatGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.model == "" {
		return "", errors.New("openai-compat generation model required")
	}
	req := struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}{g.model, chatMessages(systemPrompt, userPrompt)}
	var resp struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, g.httpClient, "openai-compat", g.baseURL+"/chat/completions", bearer(g.apiKey), req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from openai-compat")
	}
	return nonEmpty("openai-compat", resp.Choices[0].Message.Content)
}
