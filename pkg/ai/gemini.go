package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient holds credentials for the Gemini generateContent API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewGeminiClient(apiKey string, opts ...ClientOption) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key required")
	}
	c := &GeminiClient{apiKey: apiKey, baseURL: defaultGeminiBaseURL, httpClient: &http.Client{Timeout: time.Minute}}
	o := applyClientOptions(opts)
	if o.baseURL != "" {
		c.baseURL = strings.TrimRight(o.baseURL, "/")
	}
	if o.httpClient != nil {
		c.httpClient = o.httpClient
	}
	return c, nil
}

// GeminiGenerator binds a client to one model. Both "gemini-x" and
// "models/gemini-x" are accepted.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	return &GeminiGenerator{client: client, model: model}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func geminiText(role, text string) *geminiContent {
	return &geminiContent{Role: role, Parts: []geminiPart{{Text: text}}}
}

func (g *GeminiGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.model == "" {
		return "", errors.New("gemini generation model required")
	}
	req := struct {
		Contents          []*geminiContent `json:"contents"`
		SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	}{Contents: []*geminiContent{geminiText("user", userPrompt)}}
	if strings.TrimSpace(systemPrompt) != "" {
		req.SystemInstruction = geminiText("", systemPrompt)
	}
	var resp struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	header := http.Header{}
	header.Set("x-goog-api-key", g.client.apiKey)
	url := g.client.baseURL + "/models/" + g.model + ":generateContent"
	if err := postJSON(ctx, g.client.httpClient, "gemini", url, header, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("empty response from gemini")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return nonEmpty("gemini", sb.String())
}
