package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaClient holds the connection settings for a local Ollama daemon.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOllamaClient(baseURL string, opts ...ClientOption) *OllamaClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	c := &OllamaClient{baseURL: baseURL, httpClient: &http.Client{Timeout: 2 * time.Minute}}
	if o := applyClientOptions(opts); o.httpClient != nil {
		c.httpClient = o.httpClient
	}
	return c
}

// OllamaGenerator generates text through /api/chat with streaming disabled.
type OllamaGenerator struct {
	client *OllamaClient
	model  string
}

func NewOllamaGenerator(client *OllamaClient, model string) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: strings.TrimSpace(model)}
}

func (g *OllamaGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.model == "" {
		return "", errors.New("ollama generation model required")
	}
	req := struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
		Stream   bool          `json:"stream"`
	}{Model: g.model, Messages: chatMessages(systemPrompt, userPrompt)}
	var resp struct {
		Message chatMessage `json:"message"`
	}
	if err := postJSON(ctx, g.client.httpClient, "ollama", g.client.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", err
	}
	return nonEmpty("ollama", resp.Message.Content)
}
