package curation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"casedoc/pkg/domain"
)

// ErrIndexOutOfRange is returned by Update and Remove for an invalid position.
var ErrIndexOutOfRange = fmt.Errorf("topic %w", domain.ErrIndexOutOfRange)

// Session is an editable, ordered topic draft for one documentation. Nothing
// is persisted until the draft is finalized into a summary.
type Session struct {
	ID              string
	DocumentationID string
	CreatedAt       time.Time

	mu     sync.Mutex
	topics []string
}

// NewSession returns an empty draft.
func NewSession(id, documentationID string) *Session {
	return &Session{ID: id, DocumentationID: documentationID, CreatedAt: time.Now().UTC()}
}

// Seed replaces the draft with a proposal. Entries are trimmed and blank ones
// dropped, the same rule Add and Update enforce, so the draft can be shorter
// than the proposal. Indexes refer to Topics after seeding.
func (s *Session) Seed(proposed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = make([]string, 0, len(proposed))
	for _, t := range proposed {
		if t = strings.TrimSpace(t); t != "" {
			s.topics = append(s.topics, t)
		}
	}
}

// Add appends a topic.
func (s *Session) Add(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.NewValidationError("topic", "is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, text)
	return nil
}

// Update replaces the topic at index.
func (s *Session) Update(index int, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.NewValidationError("topic", "is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.topics) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(s.topics))
	}
	s.topics[index] = text
	return nil
}

// Remove deletes the topic at index and shifts later topics down.
func (s *Session) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.topics) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(s.topics))
	}
	s.topics = append(s.topics[:index], s.topics[index+1:]...)
	return nil
}

// Finalize returns a copy of the draft. The draft itself is kept.
func (s *Session) Finalize() []string {
	return s.Topics()
}

// Topics returns a copy of the current draft.
func (s *Session) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.topics))
	copy(out, s.topics)
	return out
}
