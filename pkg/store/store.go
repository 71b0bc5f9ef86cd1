package store

import (
	"context"

	"casedoc/pkg/domain"
)

// Store defines persistence operations for clients, cases, documentations,
// audio artifacts and attachments.
//
// Getters report a missing row with ok=false. Mutations of a missing row fail
// with domain.ErrNotFound; constraint violations fail with domain.ErrConflict.
type Store interface {
	// clients
	SaveClient(ctx context.Context, c domain.Client) error
	GetClient(ctx context.Context, id string) (domain.Client, bool, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	DeleteClient(ctx context.Context, id string) error

	// cases
	SaveCase(ctx context.Context, c domain.Case) error
	GetCase(ctx context.Context, id string) (domain.Case, bool, error)
	ListCasesByClient(ctx context.Context, clientID string) ([]domain.Case, error)
	DeleteCase(ctx context.Context, id string) error

	// documentations
	CreateDocumentation(ctx context.Context, d domain.Documentation) error
	GetDocumentation(ctx context.Context, id string) (domain.Documentation, bool, error)
	ListDocumentationsByCase(ctx context.Context, caseID string) ([]domain.Documentation, error)
	UpdateDocumentationFields(ctx context.Context, id string, patch domain.DocumentationPatch) (domain.Documentation, error)
	SetDocumentationSummary(ctx context.Context, id string, summary string, topics []string) error
	SetDocumentationStatus(ctx context.Context, id string, status domain.DocumentationStatus) error
	// AdvanceDocumentationStatus moves id to `to` only if it is currently in
	// `from`. It reports whether the row changed.
	AdvanceDocumentationStatus(ctx context.Context, id string, from, to domain.DocumentationStatus) (bool, error)
	// DeleteDocumentation removes the row and its attachments. It fails with
	// domain.ErrConflict while audio artifacts still reference it.
	DeleteDocumentation(ctx context.Context, id string) error

	// audio artifacts
	CreateArtifact(ctx context.Context, a domain.AudioArtifact) error
	GetArtifact(ctx context.Context, id string) (domain.AudioArtifact, bool, error)
	ListArtifacts(ctx context.Context, filter domain.ArtifactFilter) ([]domain.AudioArtifact, error)
	// SetArtifactOwner sets or clears (nil) the owning documentation. Setting
	// the current owner again succeeds without change.
	SetArtifactOwner(ctx context.Context, id string, documentationID *string) error
	SetArtifactTranscript(ctx context.Context, id string, text string) error
	DeleteArtifact(ctx context.Context, id string) error

	// attachments
	CreateAttachment(ctx context.Context, a domain.Attachment) error
	ListAttachments(ctx context.Context, documentationID string) ([]domain.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error
}
