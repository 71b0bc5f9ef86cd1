package app

import (
	"fmt"
	"net/http"
	"strings"

	"casedoc/pkg/ai"
)

// ProviderConfig selects the external services.
type ProviderConfig struct {
	TranscriptionProvider string
	TranscriptionBaseURL  string
	TranscriptionAPIKey   string
	TranscriptionModel    string
	MockTranscript        string

	GenerationProvider string
	GenerationBaseURL  string
	GenerationAPIKey   string
	GenerationModel    string
	SummaryLanguage    string

	HTTPClient *http.Client
}

func (p ProviderConfig) clientOptions() []ai.ClientOption {
	var opts []ai.ClientOption
	if p.HTTPClient != nil {
		opts = append(opts, ai.WithHTTPClient(p.HTTPClient))
	}
	return opts
}

func newTranscriber(p ProviderConfig) (ai.Transcriber, error) {
	switch strings.ToLower(strings.TrimSpace(p.TranscriptionProvider)) {
	case "", "mock":
		return ai.MockTranscriber{Text: p.MockTranscript}, nil
	case "whisper":
		if strings.TrimSpace(p.TranscriptionAPIKey) == "" {
			return nil, fmt.Errorf("transcription api key required")
		}
		return ai.NewWhisperTranscriber(p.TranscriptionBaseURL, p.TranscriptionAPIKey, p.TranscriptionModel, p.clientOptions()...), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider: %s", p.TranscriptionProvider)
	}
}

// newGenerator returns nil for the mock provider.
func newGenerator(p ProviderConfig) (ai.TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(p.GenerationProvider))
	if provider != "" && provider != "mock" && strings.TrimSpace(p.GenerationModel) == "" {
		return nil, fmt.Errorf("generation model required")
	}
	opts := p.clientOptions()
	if p.GenerationBaseURL != "" && provider == "gemini" {
		opts = append(opts, ai.WithBaseURL(p.GenerationBaseURL))
	}
	switch provider {
	case "", "mock":
		return nil, nil
	case "gemini":
		client, err := ai.NewGeminiClient(p.GenerationAPIKey, opts...)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiGenerator(client, p.GenerationModel), nil
	case "ollama":
		client := ai.NewOllamaClient(p.GenerationBaseURL, opts...)
		return ai.NewOllamaGenerator(client, p.GenerationModel), nil
	case "openai":
		return ai.NewOpenAICompatGenerator(p.GenerationBaseURL, p.GenerationAPIKey, p.GenerationModel, opts...), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", p.GenerationProvider)
	}
}
