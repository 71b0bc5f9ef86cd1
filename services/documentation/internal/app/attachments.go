package app

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"casedoc/pkg/domain"
)

// AddAttachment stores a supporting file on a documentation. Attachments are
// kept as-is and never processed.
func (a *App) AddAttachment(ctx context.Context, docID, fileName, contentType string, data []byte) (domain.Attachment, error) {
	if _, err := a.requireDocumentation(ctx, docID); err != nil {
		return domain.Attachment{}, err
	}
	fileName = path.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return domain.Attachment{}, domain.NewValidationError("fileName", "is required")
	}
	if len(data) == 0 {
		return domain.Attachment{}, domain.NewValidationError("file", "is empty")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	id := a.newID()
	key := "attachments/" + docID + "/" + id + "/" + fileName
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return domain.Attachment{}, fmt.Errorf("upload attachment: %w: %w", domain.ErrStorageFailure, err)
	}
	att := domain.Attachment{
		ID:              id,
		DocumentationID: docID,
		FileName:        fileName,
		StorageKey:      key,
		ContentType:     contentType,
		SizeBytes:       int64(len(data)),
		CreatedAt:       a.now(),
	}
	if err := a.store.CreateAttachment(ctx, att); err != nil {
		if delErr := a.objects.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			a.log.Warn("remove orphaned attachment object failed", "attachment_id", id, "err", delErr)
		}
		return domain.Attachment{}, fmt.Errorf("save attachment: %w", err)
	}
	return att, nil
}

// DeleteAttachment removes an attachment row and its object.
func (a *App) DeleteAttachment(ctx context.Context, docID, attachmentID string) error {
	attachments, err := a.store.ListAttachments(ctx, docID)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	for _, att := range attachments {
		if att.ID != attachmentID {
			continue
		}
		if err := a.store.DeleteAttachment(ctx, att.ID); err != nil {
			return fmt.Errorf("delete attachment %s: %w", att.ID, err)
		}
		if err := a.objects.Delete(ctx, att.StorageKey); err != nil {
			a.log.Warn("remove attachment object failed", "attachment_id", att.ID, "err", err)
		}
		return nil
	}
	return fmt.Errorf("%w: attachment %s", domain.ErrNotFound, attachmentID)
}
