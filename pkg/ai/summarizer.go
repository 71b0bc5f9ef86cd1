package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"casedoc/pkg/domain"
)

const defaultCallTimeout = 2 * time.Minute

// Summarizer turns an ordered topic list into prose.
type Summarizer interface {
	Summarize(ctx context.Context, topics []string) (string, error)
}

// GeneratorSummarizer builds the summary with an LLM.
type GeneratorSummarizer struct {
	gen      TextGenerator
	language string
	timeout  time.Duration
}

// NewGeneratorSummarizer wraps gen. language names the output language.
func NewGeneratorSummarizer(gen TextGenerator, language string, timeout time.Duration) *GeneratorSummarizer {
	if strings.TrimSpace(language) == "" {
		language = "German"
	}
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &GeneratorSummarizer{gen: gen, language: language, timeout: timeout}
}

func (s *GeneratorSummarizer) Summarize(ctx context.Context, topics []string) (string, error) {
	cleaned := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return "", domain.NewValidationError("topics", "must not be empty")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.gen.GenerateText(ctx, s.systemPrompt(), summaryUserPrompt(cleaned))
	if err != nil {
		return "", serviceError("summarize", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", serviceError("summarize", fmt.Errorf("no summary generated"))
	}
	return text, nil
}

func (s *GeneratorSummarizer) systemPrompt() string {
	return "You are a professional editor who turns a list of topics into a structured, coherent summary.\n" +
		"Requirements:\n" +
		"- Write well structured prose in " + s.language + ".\n" +
		"- Use clear, professional language.\n" +
		"- Group related topics and add headings for each area.\n" +
		"- Keep the summary concise but complete."
}

func summaryUserPrompt(topics []string) string {
	var sb strings.Builder
	sb.WriteString("Write a professional summary of the following topics:\n\n")
	sb.WriteString(numbered(topics))
	sb.WriteString("\nProduce structured prose with headings and paragraphs.")
	return sb.String()
}

func numbered(items []string) string {
	var sb strings.Builder
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, item)
	}
	return sb.String()
}

// MockSummarizer joins the topics into a plain outline. Used for local
// development without an LLM provider.
type MockSummarizer struct{}

func (MockSummarizer) Summarize(ctx context.Context, topics []string) (string, error) {
	if len(topics) == 0 {
		return "", domain.NewValidationError("topics", "must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return "", serviceError("summarize", err)
	}
	return "Summary\n\n" + numbered(topics), nil
}
