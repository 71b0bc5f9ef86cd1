package curation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"casedoc/pkg/domain"
)

const DefaultIdleTimeout = 30 * time.Minute

// Registry holds open curation sessions. A session that is not touched within
// the idle timeout is dropped together with its unsaved edits.
type Registry struct {
	sessions *cache.Cache
	idle     time.Duration
}

// NewRegistry creates a registry with the given idle timeout.
func NewRegistry(idle time.Duration) *Registry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	cleanup := idle / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	return &Registry{sessions: cache.New(idle, cleanup), idle: idle}
}

// Open starts a session for documentationID seeded with proposed topics.
func (r *Registry) Open(documentationID string, proposed []string) *Session {
	s := NewSession(uuid.NewString(), documentationID)
	s.Seed(proposed)
	r.sessions.Set(s.ID, s, r.idle)
	return s
}

// Get returns an open session and extends its lifetime.
func (r *Registry) Get(id string) (*Session, error) {
	v, ok := r.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: curation session %s", domain.ErrNotFound, id)
	}
	s := v.(*Session)
	r.sessions.Set(id, s, r.idle)
	return s, nil
}

// Close discards a session.
func (r *Registry) Close(id string) {
	r.sessions.Delete(id)
}

// Len reports the number of open sessions.
func (r *Registry) Len() int {
	return r.sessions.ItemCount()
}
