package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ClientModel struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type CaseModel struct {
	ID        string    `gorm:"primaryKey"`
	Reference string    `gorm:"uniqueIndex;not null"`
	ClientID  string    `gorm:"not null;index"`
	Title     string    `gorm:"not null"`
	Status    string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type DocumentationModel struct {
	ID          string         `gorm:"primaryKey"`
	CaseID      string         `gorm:"not null;index"`
	Title       string         `gorm:"not null"`
	Date        time.Time      `gorm:"not null"`
	Todos       string         `gorm:"type:text"`
	Status      string         `gorm:"not null;index"`
	SummaryText *string        `gorm:"type:text"`
	Topics      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null;index"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

// AudioArtifactModel rows reference their documentation by a nullable foreign
// key. NULL means the artifact is standalone.
type AudioArtifactModel struct {
	ID              string    `gorm:"primaryKey"`
	FileName        string    `gorm:"not null"`
	StorageKey      string    `gorm:"not null"`
	ContentType     string    `gorm:"not null"`
	SizeBytes       int64     `gorm:"not null"`
	DurationMs      int64     `gorm:"not null"`
	TranscriptText  *string   `gorm:"type:text"`
	DocumentationID *string   `gorm:"index"`
	CreatedAt       time.Time `gorm:"not null;index"`
}

type AttachmentModel struct {
	ID              string    `gorm:"primaryKey"`
	DocumentationID string    `gorm:"not null;index"`
	FileName        string    `gorm:"not null"`
	StorageKey      string    `gorm:"not null"`
	ContentType     string    `gorm:"not null"`
	SizeBytes       int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
}
