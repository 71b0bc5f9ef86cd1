package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casedoc/pkg/domain"
)

// deleteAttempts bounds how often Delete re-detaches artifacts that were
// attached concurrently while it was running.
const deleteAttempts = 3

// SetStatus applies a manual reviewer action. See domain.ValidManualTransition
// for the allowed moves.
func (a *App) SetStatus(ctx context.Context, docID string, raw string) (domain.Documentation, error) {
	target, ok := domain.ParseDocumentationStatus(raw)
	if !ok {
		return domain.Documentation{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidStateTransition, raw)
	}
	doc, err := a.requireDocumentation(ctx, docID)
	if err != nil {
		return domain.Documentation{}, err
	}
	if err := domain.ValidManualTransition(doc.Status, target); err != nil {
		return domain.Documentation{}, err
	}
	if doc.Status == target {
		return doc, nil
	}
	if err := a.store.SetDocumentationStatus(ctx, docID, target); err != nil {
		return domain.Documentation{}, fmt.Errorf("set status of documentation %s: %w", docID, err)
	}
	a.log.Info("documentation status changed", "documentation_id", docID, "from", doc.Status, "to", target)
	return a.requireDocumentation(ctx, docID)
}

// MarkInReview moves a documentation to IN_REVIEW.
func (a *App) MarkInReview(ctx context.Context, docID string) (domain.Documentation, error) {
	return a.SetStatus(ctx, docID, string(domain.StatusInReview))
}

// MarkVerified moves a documentation to VERIFIED.
func (a *App) MarkVerified(ctx context.Context, docID string) (domain.Documentation, error) {
	return a.SetStatus(ctx, docID, string(domain.StatusVerified))
}

// SendBackToReview regresses a VERIFIED documentation to IN_REVIEW.
func (a *App) SendBackToReview(ctx context.Context, docID string) (domain.Documentation, error) {
	return a.SetStatus(ctx, docID, string(domain.StatusInReview))
}

// DeleteDocumentation detaches every owned artifact and then removes the
// documentation and its attachments. Artifacts survive as standalone. If a
// detach fails the documentation is kept and the error names the artifact.
func (a *App) DeleteDocumentation(ctx context.Context, docID string) error {
	if _, err := a.requireDocumentation(ctx, docID); err != nil {
		return err
	}
	attachments, err := a.store.ListAttachments(ctx, docID)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}

	for attempt := 1; ; attempt++ {
		if err := a.detachAll(ctx, docID); err != nil {
			return err
		}
		err := a.store.DeleteDocumentation(ctx, docID)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= deleteAttempts {
			return fmt.Errorf("delete documentation %s: %w", docID, err)
		}
		a.log.Warn("artifacts attached during delete, retrying", "documentation_id", docID, "attempt", attempt)
	}

	for _, att := range attachments {
		if att.StorageKey == "" {
			continue
		}
		if err := a.objects.Delete(ctx, att.StorageKey); err != nil {
			a.log.Warn("remove attachment object failed", "documentation_id", docID, "attachment_id", att.ID, "err", err)
		}
	}
	a.log.Info("documentation deleted", "documentation_id", docID, "attachments", len(attachments))
	return nil
}

func (a *App) detachAll(ctx context.Context, docID string) error {
	owned, err := a.artifacts.ListByOwner(ctx, docID)
	if err != nil {
		return &domain.StageError{Stage: domain.StageDetach, DocumentationID: docID, Err: err}
	}
	for _, art := range owned {
		started := time.Now()
		err := a.artifacts.SetOwner(ctx, art.ID, nil)
		a.observe(domain.StageDetach, started, err)
		if err != nil {
			a.log.Error("detach artifact failed", "documentation_id", docID, "artifact_id", art.ID, "err", err)
			return &domain.StageError{Stage: domain.StageDetach, ArtifactID: art.ID, DocumentationID: docID, Err: err}
		}
	}
	return nil
}
