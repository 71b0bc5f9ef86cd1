package curation

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"casedoc/pkg/domain"
)

func TestSessionEditRoundTrip(t *testing.T) {
	s := NewSession("s1", "doc-1")
	s.Seed([]string{"a", "b", "c"})
	if err := s.Update(1, "B"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.Finalize(); !reflect.DeepEqual(got, []string{"a", "B", "c"}) {
		t.Fatalf("finalize = %v", got)
	}
	if err := s.Remove(0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := s.Finalize(); !reflect.DeepEqual(got, []string{"B", "c"}) {
		t.Fatalf("finalize after remove = %v", got)
	}
}

func TestSessionFinalizeKeepsDraft(t *testing.T) {
	s := NewSession("s1", "doc-1")
	s.Seed([]string{"a"})
	out := s.Finalize()
	out[0] = "mutated"
	if err := s.Add("b"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := s.Topics(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("topics = %v", got)
	}
}

func TestSessionRejectsInvalidIndex(t *testing.T) {
	s := NewSession("s1", "doc-1")
	s.Seed([]string{"a", "b"})
	for _, idx := range []int{-1, 2, 10} {
		if err := s.Update(idx, "x"); !errors.Is(err, domain.ErrIndexOutOfRange) {
			t.Fatalf("update(%d): expected index error, got %v", idx, err)
		}
		if err := s.Remove(idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("remove(%d): expected index error, got %v", idx, err)
		}
	}
	if got := s.Topics(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("draft changed: %v", got)
	}
}

func TestSessionSeedReplacesAndTrims(t *testing.T) {
	s := NewSession("s1", "doc-1")
	s.Seed([]string{"old"})
	s.Seed([]string{" x ", "", "y"})
	if got := s.Topics(); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("topics = %v", got)
	}
	if err := s.Update(1, "z"); err != nil {
		t.Fatalf("update seeded index: %v", err)
	}
	if got := s.Topics(); !reflect.DeepEqual(got, []string{"x", "z"}) {
		t.Fatalf("index 1 should address the second kept topic, got %v", got)
	}
	if err := s.Add("  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegistryOpenGetClose(t *testing.T) {
	r := NewRegistry(time.Minute)
	s := r.Open("doc-1", []string{"a"})
	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != s || got.DocumentationID != "doc-1" {
		t.Fatalf("unexpected session")
	}
	r.Close(s.ID)
	if _, err := r.Get(s.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after close, got %v", err)
	}
}

func TestRegistryExpiresIdleSessions(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	s := r.Open("doc-1", []string{"a"})
	time.Sleep(60 * time.Millisecond)
	if _, err := r.Get(s.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}
