package domain

import (
	"fmt"
	"strings"
)

// ParseDocumentationStatus accepts the canonical names case-insensitively.
func ParseDocumentationStatus(raw string) (DocumentationStatus, bool) {
	switch DocumentationStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusOpen:
		return StatusOpen, true
	case StatusInReview:
		return StatusInReview, true
	case StatusVerified:
		return StatusVerified, true
	default:
		return "", false
	}
}

// ValidManualTransition reports whether a reviewer may move a documentation from
// one status to another. Manual actions move forward, possibly skipping
// IN_REVIEW, and the only way back is VERIFIED -> IN_REVIEW. Nothing returns to
// OPEN. Setting the current status again is a no-op.
func ValidManualTransition(from, to DocumentationStatus) error {
	if _, ok := ParseDocumentationStatus(string(from)); !ok {
		return fmt.Errorf("%w: unknown current status %q", ErrInvalidStateTransition, from)
	}
	if _, ok := ParseDocumentationStatus(string(to)); !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStateTransition, to)
	}
	if to == StatusOpen && from != StatusOpen {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	return nil
}

// AutoAdvance returns the status after a successful transcription. Only OPEN
// advances; anything further along is left untouched.
func AutoAdvance(current DocumentationStatus) (DocumentationStatus, bool) {
	if current == StatusOpen {
		return StatusInReview, true
	}
	return current, false
}
