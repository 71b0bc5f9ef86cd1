package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"casedoc/pkg/domain"
)

const migrateLockID int64 = 51837205

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ClientModel{}, &CaseModel{}, &DocumentationModel{}, &AudioArtifactModel{}, &AttachmentModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		// Artifacts must be detached before their documentation is deleted, so
		// that foreign key restricts rather than cascades.
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'case_models'
					AND constraint_name = 'case_models_client_id_fkey'
				) THEN
					ALTER TABLE case_models
					ADD CONSTRAINT case_models_client_id_fkey
					FOREIGN KEY (client_id) REFERENCES client_models(id) ON DELETE RESTRICT;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'documentation_models'
					AND constraint_name = 'documentation_models_case_id_fkey'
				) THEN
					ALTER TABLE documentation_models
					ADD CONSTRAINT documentation_models_case_id_fkey
					FOREIGN KEY (case_id) REFERENCES case_models(id) ON DELETE RESTRICT;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'audio_artifact_models'
					AND constraint_name = 'audio_artifact_models_documentation_id_fkey'
				) THEN
					ALTER TABLE audio_artifact_models
					ADD CONSTRAINT audio_artifact_models_documentation_id_fkey
					FOREIGN KEY (documentation_id) REFERENCES documentation_models(id) ON DELETE RESTRICT;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'attachment_models'
					AND constraint_name = 'attachment_models_documentation_id_fkey'
				) THEN
					ALTER TABLE attachment_models
					ADD CONSTRAINT attachment_models_documentation_id_fkey
					FOREIGN KEY (documentation_id) REFERENCES documentation_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translateError maps driver errors onto domain sentinels.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	default:
		return err
	}
}

func requireAffected(res *gorm.DB, what, id string) error {
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, what, id)
	}
	return nil
}

// SaveClient creates or updates a client.
func (s *GormStore) SaveClient(ctx context.Context, c domain.Client) error {
	model := clientToModel(c)
	return translateError(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&model).Error)
}

// GetClient returns a client by ID.
func (s *GormStore) GetClient(ctx context.Context, id string) (domain.Client, bool, error) {
	var model ClientModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Client{}, false, nil
		}
		return domain.Client{}, false, err
	}
	return clientFromModel(model), true, nil
}

// ListClients returns all clients ordered by name.
func (s *GormStore) ListClients(ctx context.Context) ([]domain.Client, error) {
	var models []ClientModel
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Client, 0, len(models))
	for _, m := range models {
		res = append(res, clientFromModel(m))
	}
	return res, nil
}

// DeleteClient removes a client without cases.
func (s *GormStore) DeleteClient(ctx context.Context, id string) error {
	return requireAffected(s.db.WithContext(ctx).Delete(&ClientModel{}, "id = ?", id), "client", id)
}

// SaveCase creates or updates a case.
func (s *GormStore) SaveCase(ctx context.Context, c domain.Case) error {
	model := caseToModel(c)
	return translateError(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reference", "client_id", "title", "status"}),
	}).Create(&model).Error)
}

// GetCase returns a case by ID.
func (s *GormStore) GetCase(ctx context.Context, id string) (domain.Case, bool, error) {
	var model CaseModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Case{}, false, nil
		}
		return domain.Case{}, false, err
	}
	return caseFromModel(model), true, nil
}

// ListCasesByClient returns a client's cases, newest first.
func (s *GormStore) ListCasesByClient(ctx context.Context, clientID string) ([]domain.Case, error) {
	var models []CaseModel
	if err := s.db.WithContext(ctx).Where("client_id = ?", clientID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Case, 0, len(models))
	for _, m := range models {
		res = append(res, caseFromModel(m))
	}
	return res, nil
}

// DeleteCase removes a case without documentations.
func (s *GormStore) DeleteCase(ctx context.Context, id string) error {
	return requireAffected(s.db.WithContext(ctx).Delete(&CaseModel{}, "id = ?", id), "case", id)
}

// CreateDocumentation inserts a new documentation.
func (s *GormStore) CreateDocumentation(ctx context.Context, d domain.Documentation) error {
	model, err := documentationToModel(d)
	if err != nil {
		return err
	}
	return translateError(s.db.WithContext(ctx).Create(&model).Error)
}

// GetDocumentation returns a documentation by ID.
func (s *GormStore) GetDocumentation(ctx context.Context, id string) (domain.Documentation, bool, error) {
	return s.getDocumentation(s.db.WithContext(ctx), id)
}

func (s *GormStore) getDocumentation(tx *gorm.DB, id string) (domain.Documentation, bool, error) {
	var model DocumentationModel
	if err := tx.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Documentation{}, false, nil
		}
		return domain.Documentation{}, false, err
	}
	doc, err := documentationFromModel(model)
	if err != nil {
		return domain.Documentation{}, false, err
	}
	return doc, true, nil
}

// ListDocumentationsByCase returns a case's documentations ordered by date.
func (s *GormStore) ListDocumentationsByCase(ctx context.Context, caseID string) ([]domain.Documentation, error) {
	var models []DocumentationModel
	if err := s.db.WithContext(ctx).Where("case_id = ?", caseID).Order("date DESC, created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Documentation, 0, len(models))
	for _, m := range models {
		doc, err := documentationFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, doc)
	}
	return res, nil
}

// UpdateDocumentationFields writes only the patched user-editable fields.
func (s *GormStore) UpdateDocumentationFields(ctx context.Context, id string, patch domain.DocumentationPatch) (domain.Documentation, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Date != nil {
		updates["date"] = patch.Date.UTC()
	}
	if patch.Todos != nil {
		updates["todos"] = *patch.Todos
	}
	var out domain.Documentation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&DocumentationModel{}).Where("id = ?", id).Updates(updates)
		if err := requireAffected(res, "documentation", id); err != nil {
			return err
		}
		doc, ok, err := s.getDocumentation(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: documentation %s", domain.ErrNotFound, id)
		}
		out = doc
		return nil
	})
	return out, err
}

// SetDocumentationSummary writes summary and topic snapshot in one update.
func (s *GormStore) SetDocumentationSummary(ctx context.Context, id string, summary string, topics []string) error {
	raw, err := json.Marshal(normalizeTopics(topics))
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&DocumentationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"summary_text": summary,
			"topics":       datatypes.JSON(raw),
			"updated_at":   time.Now().UTC(),
		})
	return requireAffected(res, "documentation", id)
}

// SetDocumentationStatus writes status unconditionally.
func (s *GormStore) SetDocumentationStatus(ctx context.Context, id string, status domain.DocumentationStatus) error {
	res := s.db.WithContext(ctx).Model(&DocumentationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	return requireAffected(res, "documentation", id)
}

// AdvanceDocumentationStatus is a compare-and-set on status.
func (s *GormStore) AdvanceDocumentationStatus(ctx context.Context, id string, from, to domain.DocumentationStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&DocumentationModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteDocumentation deletes a documentation and its attachments.
func (s *GormStore) DeleteDocumentation(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned int64
		if err := tx.Model(&AudioArtifactModel{}).Where("documentation_id = ?", id).Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			return fmt.Errorf("%w: documentation %s still owns %d artifacts", domain.ErrConflict, id, owned)
		}
		if err := tx.Where("documentation_id = ?", id).Delete(&AttachmentModel{}).Error; err != nil {
			return err
		}
		return requireAffected(tx.Delete(&DocumentationModel{}, "id = ?", id), "documentation", id)
	})
}

// CreateArtifact inserts artifact metadata.
func (s *GormStore) CreateArtifact(ctx context.Context, a domain.AudioArtifact) error {
	model := artifactToModel(a)
	err := s.db.WithContext(ctx).Create(&model).Error
	if errors.Is(err, gorm.ErrForeignKeyViolated) && a.DocumentationID != nil {
		return fmt.Errorf("%w: documentation %s", domain.ErrNotFound, *a.DocumentationID)
	}
	return translateError(err)
}

// GetArtifact returns artifact metadata by ID.
func (s *GormStore) GetArtifact(ctx context.Context, id string) (domain.AudioArtifact, bool, error) {
	var model AudioArtifactModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AudioArtifact{}, false, nil
		}
		return domain.AudioArtifact{}, false, err
	}
	return artifactFromModel(model), true, nil
}

// ListArtifacts returns artifacts matching filter, newest first.
func (s *GormStore) ListArtifacts(ctx context.Context, filter domain.ArtifactFilter) ([]domain.AudioArtifact, error) {
	tx := s.db.WithContext(ctx).Order("created_at DESC")
	switch {
	case filter.Unowned:
		tx = tx.Where("documentation_id IS NULL")
	case filter.OwnerID != "":
		tx = tx.Where("documentation_id = ?", filter.OwnerID)
	}
	var models []AudioArtifactModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AudioArtifact, 0, len(models))
	for _, m := range models {
		res = append(res, artifactFromModel(m))
	}
	return res, nil
}

// SetArtifactOwner reassigns ownership. A missing target documentation is
// reported as not found.
func (s *GormStore) SetArtifactOwner(ctx context.Context, id string, documentationID *string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if documentationID != nil {
			var count int64
			if err := tx.Model(&DocumentationModel{}).Where("id = ?", *documentationID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: documentation %s", domain.ErrNotFound, *documentationID)
			}
		}
		res := tx.Model(&AudioArtifactModel{}).Where("id = ?", id).Update("documentation_id", documentationID)
		return requireAffected(res, "artifact", id)
	})
}

// SetArtifactTranscript replaces the transcript text.
func (s *GormStore) SetArtifactTranscript(ctx context.Context, id string, text string) error {
	res := s.db.WithContext(ctx).Model(&AudioArtifactModel{}).Where("id = ?", id).Update("transcript_text", text)
	return requireAffected(res, "artifact", id)
}

// DeleteArtifact removes artifact metadata.
func (s *GormStore) DeleteArtifact(ctx context.Context, id string) error {
	return requireAffected(s.db.WithContext(ctx).Delete(&AudioArtifactModel{}, "id = ?", id), "artifact", id)
}

// CreateAttachment inserts attachment metadata.
func (s *GormStore) CreateAttachment(ctx context.Context, a domain.Attachment) error {
	model := attachmentToModel(a)
	return translateError(s.db.WithContext(ctx).Create(&model).Error)
}

// ListAttachments returns a documentation's attachments, oldest first.
func (s *GormStore) ListAttachments(ctx context.Context, documentationID string) ([]domain.Attachment, error) {
	var models []AttachmentModel
	if err := s.db.WithContext(ctx).Where("documentation_id = ?", documentationID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Attachment, 0, len(models))
	for _, m := range models {
		res = append(res, attachmentFromModel(m))
	}
	return res, nil
}

// DeleteAttachment removes attachment metadata.
func (s *GormStore) DeleteAttachment(ctx context.Context, id string) error {
	return requireAffected(s.db.WithContext(ctx).Delete(&AttachmentModel{}, "id = ?", id), "attachment", id)
}

func clientToModel(c domain.Client) ClientModel {
	return ClientModel{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}

func clientFromModel(m ClientModel) domain.Client {
	return domain.Client{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt}
}

func caseToModel(c domain.Case) CaseModel {
	return CaseModel{
		ID:        c.ID,
		Reference: c.Reference,
		ClientID:  c.ClientID,
		Title:     c.Title,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
	}
}

func caseFromModel(m CaseModel) domain.Case {
	return domain.Case{
		ID:        m.ID,
		Reference: m.Reference,
		ClientID:  m.ClientID,
		Title:     m.Title,
		Status:    domain.CaseStatus(m.Status),
		CreatedAt: m.CreatedAt,
	}
}

func documentationToModel(d domain.Documentation) (DocumentationModel, error) {
	model := DocumentationModel{
		ID:          d.ID,
		CaseID:      d.CaseID,
		Title:       d.Title,
		Date:        d.Date,
		Todos:       d.Todos,
		Status:      string(d.Status),
		SummaryText: d.SummaryText,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.Topics != nil {
		raw, err := json.Marshal(d.Topics)
		if err != nil {
			return DocumentationModel{}, fmt.Errorf("encode topics: %w", err)
		}
		model.Topics = raw
	}
	return model, nil
}

func documentationFromModel(m DocumentationModel) (domain.Documentation, error) {
	doc := domain.Documentation{
		ID:          m.ID,
		CaseID:      m.CaseID,
		Title:       m.Title,
		Date:        m.Date,
		Todos:       m.Todos,
		Status:      domain.DocumentationStatus(m.Status),
		SummaryText: m.SummaryText,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if len(m.Topics) > 0 {
		if err := json.Unmarshal(m.Topics, &doc.Topics); err != nil {
			return domain.Documentation{}, fmt.Errorf("decode topics: %w", err)
		}
	}
	return doc, nil
}

func artifactToModel(a domain.AudioArtifact) AudioArtifactModel {
	return AudioArtifactModel{
		ID:              a.ID,
		FileName:        a.FileName,
		StorageKey:      a.StorageKey,
		ContentType:     a.ContentType,
		SizeBytes:       a.SizeBytes,
		DurationMs:      a.DurationMs,
		TranscriptText:  a.TranscriptText,
		DocumentationID: a.DocumentationID,
		CreatedAt:       a.CreatedAt,
	}
}

func artifactFromModel(m AudioArtifactModel) domain.AudioArtifact {
	return domain.AudioArtifact{
		ID:              m.ID,
		FileName:        m.FileName,
		CreatedAt:       m.CreatedAt,
		DurationMs:      m.DurationMs,
		StorageKey:      m.StorageKey,
		ContentType:     m.ContentType,
		SizeBytes:       m.SizeBytes,
		TranscriptText:  m.TranscriptText,
		DocumentationID: m.DocumentationID,
	}
}

func attachmentToModel(a domain.Attachment) AttachmentModel {
	return AttachmentModel{
		ID:              a.ID,
		DocumentationID: a.DocumentationID,
		FileName:        a.FileName,
		StorageKey:      a.StorageKey,
		ContentType:     a.ContentType,
		SizeBytes:       a.SizeBytes,
		CreatedAt:       a.CreatedAt,
	}
}

func attachmentFromModel(m AttachmentModel) domain.Attachment {
	return domain.Attachment{
		ID:              m.ID,
		DocumentationID: m.DocumentationID,
		FileName:        m.FileName,
		StorageKey:      m.StorageKey,
		ContentType:     m.ContentType,
		SizeBytes:       m.SizeBytes,
		CreatedAt:       m.CreatedAt,
	}
}

// normalizeTopics keeps an empty list as [] rather than null.
func normalizeTopics(topics []string) []string {
	if topics == nil {
		return []string{}
	}
	return topics
}
