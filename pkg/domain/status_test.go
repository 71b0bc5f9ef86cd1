package domain

import (
	"errors"
	"testing"
)

func TestAutoAdvanceOnlyFromOpen(t *testing.T) {
	cases := []struct {
		from     DocumentationStatus
		want     DocumentationStatus
		advanced bool
	}{
		{StatusOpen, StatusInReview, true},
		{StatusInReview, StatusInReview, false},
		{StatusVerified, StatusVerified, false},
	}
	for _, tc := range cases {
		got, advanced := AutoAdvance(tc.from)
		if got != tc.want || advanced != tc.advanced {
			t.Fatalf("AutoAdvance(%s) = %s,%v want %s,%v", tc.from, got, advanced, tc.want, tc.advanced)
		}
	}
}

func TestValidManualTransition(t *testing.T) {
	if err := ValidManualTransition(StatusOpen, StatusVerified); err != nil {
		t.Fatalf("open -> verified should be allowed: %v", err)
	}
	if err := ValidManualTransition(StatusVerified, StatusInReview); err != nil {
		t.Fatalf("verified -> in review should be allowed: %v", err)
	}
	if err := ValidManualTransition(StatusOpen, "DONE"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	if err := ValidManualTransition(StatusOpen, StatusOpen); err != nil {
		t.Fatalf("open -> open is a no-op: %v", err)
	}
	for _, from := range []DocumentationStatus{StatusInReview, StatusVerified} {
		if err := ValidManualTransition(from, StatusOpen); !errors.Is(err, ErrInvalidStateTransition) {
			t.Fatalf("%s -> OPEN must be rejected, got %v", from, err)
		}
	}
}

func TestParseDocumentationStatus(t *testing.T) {
	if got, ok := ParseDocumentationStatus(" in_review "); !ok || got != StatusInReview {
		t.Fatalf("parse in_review = %q,%v", got, ok)
	}
	if _, ok := ParseDocumentationStatus("closed"); ok {
		t.Fatalf("closed is not a documentation status")
	}
}

func TestStageErrorUnwrap(t *testing.T) {
	err := &StageError{Stage: StageUpload, ArtifactID: "a1", Err: ErrStorageFailure}
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("StageError should unwrap to its cause")
	}
	if got := err.Error(); got != "upload failed for artifact a1: storage failure" {
		t.Fatalf("unexpected message %q", got)
	}
}
