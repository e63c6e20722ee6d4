package draft

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/refdeck/internal/apperr"
)

// Registry tracks open sessions and allows at most one per document. A
// second Open for the same document is rejected with apperr.ErrSessionOpen.
type Registry struct {
	mu    sync.Mutex
	byID  map[string]*Session
	byDoc map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]*Session),
		byDoc: make(map[string]string),
	}
}

// Open starts and registers a session for docID.
func (r *Registry) Open(ctx context.Context, store FieldStore, docID string, fields []string, active string) (*Session, error) {
	r.mu.Lock()
	if _, busy := r.byDoc[docID]; busy {
		r.mu.Unlock()
		return nil, apperr.ErrSessionOpen
	}
	// Reserve the document while the fields are read.
	r.byDoc[docID] = ""
	r.mu.Unlock()

	s, err := Open(ctx, store, docID, fields, active)
	if err != nil {
		r.mu.Lock()
		delete(r.byDoc, docID)
		r.mu.Unlock()
		return nil, err
	}

	s.id = uuid.NewString()
	s.onClose = r.release

	r.mu.Lock()
	r.byID[s.id] = s
	r.byDoc[docID] = s.id
	r.mu.Unlock()
	return s, nil
}

// Get returns the open session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, apperr.ErrSessionNotFound
	}
	return s, nil
}

// ForDocument returns the open session for docID, if any.
func (r *Registry) ForDocument(docID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byDoc[docID]
	if !ok || id == "" {
		return nil, false
	}
	return r.byID[id], true
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// CancelAll cancels every open session. It is used on shutdown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	open := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		open = append(open, s)
	}
	r.mu.Unlock()
	for _, s := range open {
		_ = s.Cancel()
	}
}

func (r *Registry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, s.id)
	if r.byDoc[s.docID] == s.id {
		delete(r.byDoc, s.docID)
	}
}
