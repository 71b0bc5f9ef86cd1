package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"casedoc/pkg/domain"
)

func seedDocumentation(t *testing.T, s *MemoryStore, docID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	if err := s.SaveClient(ctx, domain.Client{ID: "client-1", Name: "Ada", CreatedAt: now}); err != nil {
		t.Fatalf("save client: %v", err)
	}
	if err := s.SaveCase(ctx, domain.Case{ID: "case-1", Reference: "CASE-2025-001", ClientID: "client-1", Title: "Intake", Status: domain.CaseOpen, CreatedAt: now}); err != nil {
		t.Fatalf("save case: %v", err)
	}
	if err := s.CreateDocumentation(ctx, domain.Documentation{ID: docID, CaseID: "case-1", Title: "Visit", Date: now, Status: domain.StatusOpen, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create documentation: %v", err)
	}
}

func TestMemoryStoreArtifactOwnership(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedDocumentation(t, s, "doc-1")

	if err := s.CreateArtifact(ctx, domain.AudioArtifact{ID: "a1", FileName: "a.wav", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	unowned, err := s.ListArtifacts(ctx, domain.ArtifactFilter{Unowned: true})
	if err != nil || len(unowned) != 1 {
		t.Fatalf("expected one unowned artifact, got %d (%v)", len(unowned), err)
	}

	for i := 0; i < 2; i++ {
		if err := s.SetArtifactOwner(ctx, "a1", domain.StringPtr("doc-1")); err != nil {
			t.Fatalf("set owner #%d: %v", i+1, err)
		}
	}
	owned, err := s.ListArtifacts(ctx, domain.ArtifactFilter{OwnerID: "doc-1"})
	if err != nil || len(owned) != 1 {
		t.Fatalf("expected one owned artifact, got %d (%v)", len(owned), err)
	}

	if err := s.SetArtifactOwner(ctx, "a1", domain.StringPtr("missing")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown documentation, got %v", err)
	}
	if err := s.SetArtifactOwner(ctx, "missing", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown artifact, got %v", err)
	}

	if err := s.DeleteDocumentation(ctx, "doc-1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict while artifact is owned, got %v", err)
	}
	if err := s.SetArtifactOwner(ctx, "a1", nil); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if err := s.DeleteDocumentation(ctx, "doc-1"); err != nil {
		t.Fatalf("delete documentation: %v", err)
	}
	a, ok, err := s.GetArtifact(ctx, "a1")
	if err != nil || !ok {
		t.Fatalf("artifact should survive: ok=%v err=%v", ok, err)
	}
	if !a.Standalone() {
		t.Fatalf("expected standalone artifact")
	}
}

func TestMemoryStoreAdvanceStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedDocumentation(t, s, "doc-1")

	changed, err := s.AdvanceDocumentationStatus(ctx, "doc-1", domain.StatusOpen, domain.StatusInReview)
	if err != nil || !changed {
		t.Fatalf("first advance: changed=%v err=%v", changed, err)
	}
	changed, err = s.AdvanceDocumentationStatus(ctx, "doc-1", domain.StatusOpen, domain.StatusInReview)
	if err != nil || changed {
		t.Fatalf("second advance should be a no-op: changed=%v err=%v", changed, err)
	}
	if err := s.SetDocumentationStatus(ctx, "doc-1", domain.StatusVerified); err != nil {
		t.Fatalf("set status: %v", err)
	}
	changed, _ = s.AdvanceDocumentationStatus(ctx, "doc-1", domain.StatusOpen, domain.StatusInReview)
	if changed {
		t.Fatalf("verified documentation must not be advanced")
	}
	doc, _, _ := s.GetDocumentation(ctx, "doc-1")
	if doc.Status != domain.StatusVerified {
		t.Fatalf("status = %s, want VERIFIED", doc.Status)
	}
}

func TestMemoryStoreSummaryAndFieldUpdatesAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedDocumentation(t, s, "doc-1")

	if err := s.SetDocumentationSummary(ctx, "doc-1", "Summary", []string{"a", "b"}); err != nil {
		t.Fatalf("set summary: %v", err)
	}
	doc, err := s.UpdateDocumentationFields(ctx, "doc-1", domain.DocumentationPatch{Todos: domain.StringPtr("call back\nsend form")})
	if err != nil {
		t.Fatalf("update fields: %v", err)
	}
	if doc.SummaryText == nil || *doc.SummaryText != "Summary" {
		t.Fatalf("summary lost after field update")
	}
	if len(doc.Topics) != 2 || doc.Topics[1] != "b" {
		t.Fatalf("topics lost after field update: %v", doc.Topics)
	}
	if doc.Title != "Visit" {
		t.Fatalf("title changed unexpectedly: %q", doc.Title)
	}
	if _, err := s.UpdateDocumentationFields(ctx, "missing", domain.DocumentationPatch{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreDeleteDocumentationRemovesAttachments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedDocumentation(t, s, "doc-1")
	if err := s.CreateAttachment(ctx, domain.Attachment{ID: "att-1", DocumentationID: "doc-1", FileName: "form.pdf"}); err != nil {
		t.Fatalf("create attachment: %v", err)
	}
	if err := s.DeleteDocumentation(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	atts, _ := s.ListAttachments(ctx, "doc-1")
	if len(atts) != 0 {
		t.Fatalf("expected attachments removed, got %d", len(atts))
	}
	if err := s.DeleteCase(ctx, "case-1"); err != nil {
		t.Fatalf("delete case: %v", err)
	}
}

func TestMemoryStoreCreateArtifactUnknownOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := domain.AudioArtifact{ID: "a1", FileName: "a.wav", CreatedAt: time.Now(), DocumentationID: domain.StringPtr("missing")}
	if err := s.CreateArtifact(ctx, a); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown documentation, got %v", err)
	}
	if _, ok, _ := s.GetArtifact(ctx, "a1"); ok {
		t.Fatalf("artifact stored despite unknown owner")
	}
}
