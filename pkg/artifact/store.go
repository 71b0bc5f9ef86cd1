package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"casedoc/pkg/domain"
	"casedoc/pkg/storage"
)

const unassignedNamespace = "unassigned"

// Records is the metadata side of artifact persistence.
type Records interface {
	CreateArtifact(ctx context.Context, a domain.AudioArtifact) error
	GetArtifact(ctx context.Context, id string) (domain.AudioArtifact, bool, error)
	ListArtifacts(ctx context.Context, filter domain.ArtifactFilter) ([]domain.AudioArtifact, error)
	SetArtifactOwner(ctx context.Context, id string, documentationID *string) error
	SetArtifactTranscript(ctx context.Context, id string, text string) error
	DeleteArtifact(ctx context.Context, id string) error
}

// Store persists audio artifacts as an object plus a metadata row,
// independent of any documentation.
type Store struct {
	records Records
	objects storage.ObjectStore
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides server id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.log = logger }
}

// NewStore builds an artifact store.
func NewStore(records Records, objects storage.ObjectStore, opts ...Option) *Store {
	s := &Store{
		records: records,
		objects: objects,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.log = s.log.With("component", "artifact_store")
	return s
}

// ObjectKey is the storage path for an artifact saved under ownerID.
func ObjectKey(ownerID *string, artifactID string) string {
	ns := unassignedNamespace
	if ownerID != nil && *ownerID != "" {
		ns = *ownerID
	}
	return "audio/" + ns + "/" + artifactID + ".wav"
}

// Save uploads the blob, then writes the metadata row. A failed upload never
// leaves a row behind; a failed row write removes the uploaded object.
func (s *Store) Save(ctx context.Context, raw domain.RawArtifact, ownerID *string) (domain.AudioArtifact, error) {
	if len(raw.Data) == 0 {
		return domain.AudioArtifact{}, domain.NewValidationError("data", "is empty")
	}
	if raw.DurationMs < 0 {
		return domain.AudioArtifact{}, domain.NewValidationError("durationMs", "must not be negative")
	}
	id := s.newID()
	key := ObjectKey(ownerID, id)
	fileName := raw.FileName
	if fileName == "" {
		fileName = id + ".wav"
	}
	createdAt := raw.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	if err := s.objects.Put(ctx, key, bytes.NewReader(raw.Data), int64(len(raw.Data)), domain.ArtifactContentType); err != nil {
		return domain.AudioArtifact{}, fmt.Errorf("upload artifact object %s: %w: %w", key, domain.ErrStorageFailure, err)
	}

	a := domain.AudioArtifact{
		ID:              id,
		FileName:        fileName,
		CreatedAt:       createdAt.UTC(),
		DurationMs:      raw.DurationMs,
		StorageKey:      key,
		ContentType:     domain.ArtifactContentType,
		SizeBytes:       int64(len(raw.Data)),
		DocumentationID: ownerID,
	}
	if err := s.records.CreateArtifact(ctx, a); err != nil {
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.log.Warn("remove orphaned artifact object failed", "artifact_id", id, "key", key, "err", delErr)
		}
		return domain.AudioArtifact{}, fmt.Errorf("save artifact metadata %s: %w", id, err)
	}
	s.log.Info("artifact saved", "artifact_id", id, "documentation_id", derefOr(ownerID, ""), "size_bytes", a.SizeBytes, "duration_ms", a.DurationMs)
	return s.withURL(ctx, a), nil
}

// Get returns one artifact with its resolved URL.
func (s *Store) Get(ctx context.Context, id string) (domain.AudioArtifact, error) {
	a, ok, err := s.records.GetArtifact(ctx, id)
	if err != nil {
		return domain.AudioArtifact{}, fmt.Errorf("get artifact %s: %w", id, err)
	}
	if !ok {
		return domain.AudioArtifact{}, fmt.Errorf("%w: artifact %s", domain.ErrNotFound, id)
	}
	return s.withURL(ctx, a), nil
}

// ListUnowned returns the standalone pool.
func (s *Store) ListUnowned(ctx context.Context) ([]domain.AudioArtifact, error) {
	return s.list(ctx, domain.ArtifactFilter{Unowned: true})
}

// ListByOwner returns the artifacts owned by a documentation.
func (s *Store) ListByOwner(ctx context.Context, documentationID string) ([]domain.AudioArtifact, error) {
	if documentationID == "" {
		return nil, domain.NewValidationError("documentationId", "is required")
	}
	return s.list(ctx, domain.ArtifactFilter{OwnerID: documentationID})
}

func (s *Store) list(ctx context.Context, filter domain.ArtifactFilter) ([]domain.AudioArtifact, error) {
	items, err := s.records.ListArtifacts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	for i := range items {
		items[i] = s.withURL(ctx, items[i])
	}
	return items, nil
}

// SetOwner assigns the artifact to a documentation, or detaches it when
// documentationID is nil. Repeating the same assignment is a no-op.
func (s *Store) SetOwner(ctx context.Context, id string, documentationID *string) error {
	if documentationID != nil && *documentationID == "" {
		documentationID = nil
	}
	if err := s.records.SetArtifactOwner(ctx, id, documentationID); err != nil {
		return fmt.Errorf("set owner of artifact %s: %w", id, err)
	}
	return nil
}

// SetTranscript replaces the artifact's transcript text.
func (s *Store) SetTranscript(ctx context.Context, id string, text string) error {
	if err := s.records.SetArtifactTranscript(ctx, id, text); err != nil {
		return fmt.Errorf("set transcript of artifact %s: %w", id, err)
	}
	return nil
}

// Open loads the artifact's blob.
func (s *Store) Open(ctx context.Context, id string) (domain.AudioArtifact, []byte, error) {
	a, ok, err := s.records.GetArtifact(ctx, id)
	if err != nil {
		return domain.AudioArtifact{}, nil, fmt.Errorf("get artifact %s: %w", id, err)
	}
	if !ok {
		return domain.AudioArtifact{}, nil, fmt.Errorf("%w: artifact %s", domain.ErrNotFound, id)
	}
	data, err := s.objects.Get(ctx, a.StorageKey)
	if err != nil {
		return domain.AudioArtifact{}, nil, fmt.Errorf("download artifact %s: %w: %w", id, domain.ErrStorageFailure, err)
	}
	return a, data, nil
}

// Delete removes the object and then the metadata row. An object that is
// already gone is logged and does not block the row removal.
func (s *Store) Delete(ctx context.Context, id string) error {
	a, ok, err := s.records.GetArtifact(ctx, id)
	if err != nil {
		return fmt.Errorf("get artifact %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: artifact %s", domain.ErrNotFound, id)
	}
	if err := s.objects.Delete(ctx, a.StorageKey); err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("delete artifact object %s: %w: %w", id, domain.ErrStorageFailure, err)
		}
		s.log.Warn("artifact object already gone", "artifact_id", id, "key", a.StorageKey)
	}
	if err := s.records.DeleteArtifact(ctx, id); err != nil {
		return fmt.Errorf("delete artifact metadata %s: %w", id, err)
	}
	s.log.Info("artifact deleted", "artifact_id", id)
	return nil
}

func (s *Store) withURL(ctx context.Context, a domain.AudioArtifact) domain.AudioArtifact {
	url, err := s.objects.PublicURL(ctx, a.StorageKey)
	if err != nil {
		s.log.Warn("resolve artifact url failed", "artifact_id", a.ID, "err", err)
		return a
	}
	a.URL = url
	return a
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
