package domain

import "time"

type DocumentationStatus string

const (
	StatusOpen     DocumentationStatus = "OPEN"
	StatusInReview DocumentationStatus = "IN_REVIEW"
	StatusVerified DocumentationStatus = "VERIFIED"
)

type CaseStatus string

const (
	CaseOpen   CaseStatus = "OPEN"
	CaseClosed CaseStatus = "CLOSED"
)

// ArtifactContentType is applied to every stored audio artifact.
const ArtifactContentType = "audio/wav"

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Case struct {
	ID        string     `json:"id"`
	Reference string     `json:"reference"`
	ClientID  string     `json:"clientId"`
	Title     string     `json:"title"`
	Status    CaseStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Documentation is the case-file record. Its audio artifacts are never embedded;
// they are derived by querying artifacts owned by the documentation.
type Documentation struct {
	ID          string              `json:"id"`
	CaseID      string              `json:"caseId"`
	Title       string              `json:"title"`
	Date        time.Time           `json:"date"`
	Todos       string              `json:"todos"`
	Status      DocumentationStatus `json:"status"`
	SummaryText *string             `json:"summaryText,omitempty"`
	Topics      []string            `json:"topics,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// AudioArtifact is a persisted recording. DocumentationID == nil means standalone.
type AudioArtifact struct {
	ID              string    `json:"id"`
	FileName        string    `json:"fileName"`
	CreatedAt       time.Time `json:"createdAt"`
	DurationMs      int64     `json:"durationMs"`
	StorageKey      string    `json:"-"`
	URL             string    `json:"url,omitempty"`
	ContentType     string    `json:"contentType"`
	SizeBytes       int64     `json:"sizeBytes"`
	TranscriptText  *string   `json:"transcriptText,omitempty"`
	DocumentationID *string   `json:"documentationId"`
}

// Standalone reports whether the artifact has no owning documentation.
func (a AudioArtifact) Standalone() bool {
	return a.DocumentationID == nil
}

// OwnedBy reports whether docID owns the artifact.
func (a AudioArtifact) OwnedBy(docID string) bool {
	return a.DocumentationID != nil && *a.DocumentationID == docID
}

// RawArtifact is a freshly captured recording that only exists in memory.
// ID is a client-assigned provisional id.
type RawArtifact struct {
	ID          string
	FileName    string
	ContentType string
	Data        []byte
	DurationMs  int64
	CreatedAt   time.Time
}

type Attachment struct {
	ID              string    `json:"id"`
	DocumentationID string    `json:"documentationId"`
	FileName        string    `json:"fileName"`
	StorageKey      string    `json:"-"`
	ContentType     string    `json:"contentType"`
	SizeBytes       int64     `json:"sizeBytes"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ArtifactFilter selects artifacts by owner. Unowned selects standalone artifacts;
// otherwise OwnerID selects one documentation's artifacts. A zero filter selects all.
type ArtifactFilter struct {
	Unowned bool
	OwnerID string
}

// DocumentationPatch carries the user-editable documentation fields.
type DocumentationPatch struct {
	Title *string    `json:"title,omitempty"`
	Date  *time.Time `json:"date,omitempty"`
	Todos *string    `json:"todos,omitempty"`
}

func StringPtr(s string) *string {
	return &s
}
