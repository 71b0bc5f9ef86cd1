package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"casedoc/pkg/domain"
)

// MemoryStore keeps records in-process. It enforces the same referential rules
// as GormStore and is used for local runs and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	clients     map[string]domain.Client
	cases       map[string]domain.Case
	docs        map[string]domain.Documentation
	artifacts   map[string]domain.AudioArtifact
	attachments map[string]domain.Attachment
	seq         map[string]int64
	next        int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:     make(map[string]domain.Client),
		cases:       make(map[string]domain.Case),
		docs:        make(map[string]domain.Documentation),
		artifacts:   make(map[string]domain.AudioArtifact),
		attachments: make(map[string]domain.Attachment),
		seq:         make(map[string]int64),
	}
}

// track records insertion order for stable listing.
func (m *MemoryStore) track(id string) {
	if _, ok := m.seq[id]; !ok {
		m.next++
		m.seq[id] = m.next
	}
}

func (m *MemoryStore) SaveClient(_ context.Context, c domain.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track(c.ID)
	m.clients[c.ID] = c
	return nil
}

func (m *MemoryStore) GetClient(_ context.Context, id string) (domain.Client, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	return c, ok, nil
}

func (m *MemoryStore) ListClients(_ context.Context) ([]domain.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Client, 0, len(m.clients))
	for _, c := range m.clients {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (m *MemoryStore) DeleteClient(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[id]; !ok {
		return fmt.Errorf("%w: client %s", domain.ErrNotFound, id)
	}
	for _, c := range m.cases {
		if c.ClientID == id {
			return fmt.Errorf("%w: client %s still has cases", domain.ErrConflict, id)
		}
	}
	delete(m.clients, id)
	return nil
}

func (m *MemoryStore) SaveCase(_ context.Context, c domain.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.ClientID]; !ok {
		return fmt.Errorf("%w: unknown client %s", domain.ErrConflict, c.ClientID)
	}
	for id, other := range m.cases {
		if id != c.ID && other.Reference == c.Reference {
			return fmt.Errorf("%w: duplicate case reference %s", domain.ErrConflict, c.Reference)
		}
	}
	m.track(c.ID)
	m.cases[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCase(_ context.Context, id string) (domain.Case, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	return c, ok, nil
}

func (m *MemoryStore) ListCasesByClient(_ context.Context, clientID string) ([]domain.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Case, 0)
	for _, c := range m.cases {
		if c.ClientID == clientID {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return m.newer(res[i].ID, res[i].CreatedAt, res[j].ID, res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) DeleteCase(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[id]; !ok {
		return fmt.Errorf("%w: case %s", domain.ErrNotFound, id)
	}
	for _, d := range m.docs {
		if d.CaseID == id {
			return fmt.Errorf("%w: case %s still has documentations", domain.ErrConflict, id)
		}
	}
	delete(m.cases, id)
	return nil
}

func (m *MemoryStore) CreateDocumentation(_ context.Context, d domain.Documentation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[d.ID]; ok {
		return fmt.Errorf("%w: documentation %s exists", domain.ErrConflict, d.ID)
	}
	if _, ok := m.cases[d.CaseID]; !ok {
		return fmt.Errorf("%w: unknown case %s", domain.ErrConflict, d.CaseID)
	}
	m.track(d.ID)
	m.docs[d.ID] = cloneDocumentation(d)
	return nil
}

func (m *MemoryStore) GetDocumentation(_ context.Context, id string) (domain.Documentation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return domain.Documentation{}, false, nil
	}
	return cloneDocumentation(d), true, nil
}

func (m *MemoryStore) ListDocumentationsByCase(_ context.Context, caseID string) ([]domain.Documentation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Documentation, 0)
	for _, d := range m.docs {
		if d.CaseID == caseID {
			res = append(res, cloneDocumentation(d))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Date.Equal(res[j].Date) {
			return res[i].Date.After(res[j].Date)
		}
		return m.newer(res[i].ID, res[i].CreatedAt, res[j].ID, res[j].CreatedAt)
	})
	return res, nil
}

func (m *MemoryStore) UpdateDocumentationFields(_ context.Context, id string, patch domain.DocumentationPatch) (domain.Documentation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return domain.Documentation{}, fmt.Errorf("%w: documentation %s", domain.ErrNotFound, id)
	}
	if patch.Title != nil {
		d.Title = *patch.Title
	}
	if patch.Date != nil {
		d.Date = patch.Date.UTC()
	}
	if patch.Todos != nil {
		d.Todos = *patch.Todos
	}
	d.UpdatedAt = time.Now().UTC()
	m.docs[id] = d
	return cloneDocumentation(d), nil
}

func (m *MemoryStore) SetDocumentationSummary(_ context.Context, id string, summary string, topics []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: documentation %s", domain.ErrNotFound, id)
	}
	d.SummaryText = domain.StringPtr(summary)
	d.Topics = append([]string{}, topics...)
	d.UpdatedAt = time.Now().UTC()
	m.docs[id] = d
	return nil
}

func (m *MemoryStore) SetDocumentationStatus(_ context.Context, id string, status domain.DocumentationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: documentation %s", domain.ErrNotFound, id)
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	m.docs[id] = d
	return nil
}

func (m *MemoryStore) AdvanceDocumentationStatus(_ context.Context, id string, from, to domain.DocumentationStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = to
	d.UpdatedAt = time.Now().UTC()
	m.docs[id] = d
	return true, nil
}

func (m *MemoryStore) DeleteDocumentation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("%w: documentation %s", domain.ErrNotFound, id)
	}
	owned := 0
	for _, a := range m.artifacts {
		if a.OwnedBy(id) {
			owned++
		}
	}
	if owned > 0 {
		return fmt.Errorf("%w: documentation %s still owns %d artifacts", domain.ErrConflict, id, owned)
	}
	for aid, att := range m.attachments {
		if att.DocumentationID == id {
			delete(m.attachments, aid)
		}
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryStore) CreateArtifact(_ context.Context, a domain.AudioArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.artifacts[a.ID]; ok {
		return fmt.Errorf("%w: artifact %s exists", domain.ErrConflict, a.ID)
	}
	if a.DocumentationID != nil {
		if _, ok := m.docs[*a.DocumentationID]; !ok {
			return fmt.Errorf("%w: documentation %s", domain.ErrNotFound, *a.DocumentationID)
		}
	}
	m.track(a.ID)
	a.URL = ""
	m.artifacts[a.ID] = cloneArtifact(a)
	return nil
}

func (m *MemoryStore) GetArtifact(_ context.Context, id string) (domain.AudioArtifact, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.artifacts[id]
	if !ok {
		return domain.AudioArtifact{}, false, nil
	}
	return cloneArtifact(a), true, nil
}

func (m *MemoryStore) ListArtifacts(_ context.Context, filter domain.ArtifactFilter) ([]domain.AudioArtifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.AudioArtifact, 0)
	for _, a := range m.artifacts {
		switch {
		case filter.Unowned && !a.Standalone():
			continue
		case !filter.Unowned && filter.OwnerID != "" && !a.OwnedBy(filter.OwnerID):
			continue
		}
		res = append(res, cloneArtifact(a))
	}
	sort.Slice(res, func(i, j int) bool { return m.newer(res[i].ID, res[i].CreatedAt, res[j].ID, res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) SetArtifactOwner(_ context.Context, id string, documentationID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[id]
	if !ok {
		return fmt.Errorf("%w: artifact %s", domain.ErrNotFound, id)
	}
	if documentationID != nil {
		if _, ok := m.docs[*documentationID]; !ok {
			return fmt.Errorf("%w: documentation %s", domain.ErrNotFound, *documentationID)
		}
		a.DocumentationID = domain.StringPtr(*documentationID)
	} else {
		a.DocumentationID = nil
	}
	m.artifacts[id] = a
	return nil
}

func (m *MemoryStore) SetArtifactTranscript(_ context.Context, id string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[id]
	if !ok {
		return fmt.Errorf("%w: artifact %s", domain.ErrNotFound, id)
	}
	a.TranscriptText = domain.StringPtr(text)
	m.artifacts[id] = a
	return nil
}

func (m *MemoryStore) DeleteArtifact(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.artifacts[id]; !ok {
		return fmt.Errorf("%w: artifact %s", domain.ErrNotFound, id)
	}
	delete(m.artifacts, id)
	return nil
}

func (m *MemoryStore) CreateAttachment(_ context.Context, a domain.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[a.DocumentationID]; !ok {
		return fmt.Errorf("%w: unknown documentation %s", domain.ErrConflict, a.DocumentationID)
	}
	m.track(a.ID)
	m.attachments[a.ID] = a
	return nil
}

func (m *MemoryStore) ListAttachments(_ context.Context, documentationID string) ([]domain.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Attachment, 0)
	for _, a := range m.attachments {
		if a.DocumentationID == documentationID {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return m.seq[res[i].ID] < m.seq[res[j].ID] })
	return res, nil
}

func (m *MemoryStore) DeleteAttachment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attachments[id]; !ok {
		return fmt.Errorf("%w: attachment %s", domain.ErrNotFound, id)
	}
	delete(m.attachments, id)
	return nil
}

// newer orders by creation time descending, then by insertion descending.
func (m *MemoryStore) newer(idA string, a time.Time, idB string, b time.Time) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return m.seq[idA] > m.seq[idB]
}

func cloneDocumentation(d domain.Documentation) domain.Documentation {
	if d.SummaryText != nil {
		d.SummaryText = domain.StringPtr(*d.SummaryText)
	}
	if d.Topics != nil {
		d.Topics = append([]string{}, d.Topics...)
	}
	return d
}

func cloneArtifact(a domain.AudioArtifact) domain.AudioArtifact {
	if a.TranscriptText != nil {
		a.TranscriptText = domain.StringPtr(*a.TranscriptText)
	}
	if a.DocumentationID != nil {
		a.DocumentationID = domain.StringPtr(*a.DocumentationID)
	}
	return a
}
