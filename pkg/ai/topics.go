package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"casedoc/pkg/domain"
)

// TranscriptSeparator is placed between recordings when several transcripts
// are combined for topic extraction.
const TranscriptSeparator = "\n\n--- next recording ---\n\n"

const maxTopics = 20

// TopicExtractor proposes an ordered topic list for a transcript.
type TopicExtractor interface {
	ExtractTopics(ctx context.Context, transcript string) ([]string, error)
}

// JoinTranscripts combines non-empty transcripts in order.
func JoinTranscripts(transcripts []string) string {
	parts := make([]string, 0, len(transcripts))
	for _, t := range transcripts {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, TranscriptSeparator)
}

// GeneratorTopicExtractor asks an LLM for one topic per line.
type GeneratorTopicExtractor struct {
	gen      TextGenerator
	language string
	timeout  time.Duration
}

func NewGeneratorTopicExtractor(gen TextGenerator, language string, timeout time.Duration) *GeneratorTopicExtractor {
	if strings.TrimSpace(language) == "" {
		language = "German"
	}
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &GeneratorTopicExtractor{gen: gen, language: language, timeout: timeout}
}

func (e *GeneratorTopicExtractor) ExtractTopics(ctx context.Context, transcript string) ([]string, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, domain.NewValidationError("transcript", "is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	system := "You extract the key topics discussed in a conversation transcript.\n" +
		"Return one short topic per line in " + e.language + ", in the order they were discussed.\n" +
		"Do not add numbering, commentary or empty lines."
	text, err := e.gen.GenerateText(ctx, system, "Transcript:\n\n"+transcript)
	if err != nil {
		return nil, serviceError("extract topics", err)
	}
	topics := ParseTopicLines(text)
	if len(topics) == 0 {
		return nil, serviceError("extract topics", fmt.Errorf("no topics extracted"))
	}
	return topics, nil
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)])\s*`)

// ParseTopicLines splits model output into topics, stripping list markers and
// duplicates.
func ParseTopicLines(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		line = strings.Trim(line, "*_ ")
		if line == "" {
			continue
		}
		key := strings.ToLower(line)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, line)
		if len(out) == maxTopics {
			break
		}
	}
	return out
}

// StaticTopicExtractor derives topics from transcript sentences without a
// model. Used together with MockTranscriber for local development.
type StaticTopicExtractor struct{}

func (StaticTopicExtractor) ExtractTopics(ctx context.Context, transcript string) ([]string, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, domain.NewValidationError("transcript", "is empty")
	}
	var topics []string
	for _, chunk := range strings.Split(transcript, TranscriptSeparator) {
		for _, sentence := range strings.FieldsFunc(chunk, func(r rune) bool { return r == '.' || r == '\n' }) {
			if s := strings.TrimSpace(sentence); s != "" {
				topics = append(topics, s)
			}
		}
	}
	topics = ParseTopicLines(strings.Join(topics, "\n"))
	if len(topics) == 0 {
		return nil, serviceError("extract topics", fmt.Errorf("no topics extracted"))
	}
	return topics, nil
}
