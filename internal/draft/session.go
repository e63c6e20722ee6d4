// Package draft implements the multi-field editing session for the reference
// lists of one document: an in-memory working copy that is edited field by
// field and written back only where it differs from storage.
package draft

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/starford/refdeck/internal/models"
	"github.com/starford/refdeck/internal/reference"
	"github.com/starford/refdeck/internal/section"
)

var (
	// ErrClosed is returned by every operation on a committed or cancelled session.
	ErrClosed = errors.New("draft: session is closed")
	// ErrNotPermutation is returned by Reorder when the new order adds or drops entries.
	ErrNotPermutation = errors.New("draft: reorder must keep the same entries")
)

// FieldStore is the slice of the document store a session needs.
type FieldStore interface {
	Fields(ctx context.Context, docID string) (map[string]any, error)
	SetFields(ctx context.Context, docID string, patch models.Patch) error
}

// State is the lifecycle state of a session.
type State string

const (
	StateOpen      State = "open"
	StateCommitted State = "committed"
	StateCancelled State = "cancelled"
)

// Session is a working copy of a document's reference fields. It is safe for
// concurrent use; all mutations are serialised.
type Session struct {
	mu sync.Mutex

	id      string
	docID   string
	fields  []string
	store   FieldStore
	onClose func(*Session)

	state     State
	active    string
	draft     map[string][]string
	displayed []string
}

// Open reads the configured fields of docID and starts a session on them.
// active selects the initial field and falls back to the first configured
// field when unknown.
func Open(ctx context.Context, store FieldStore, docID string, fields []string, active string) (*Session, error) {
	fm, err := store.Fields(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("draft: open %s: %w", docID, err)
	}
	fields = slices.Clone(section.Fields(fields))

	s := &Session{
		docID:  docID,
		fields: fields,
		store:  store,
		state:  StateOpen,
		draft:  make(map[string][]string, len(fields)),
	}
	for _, f := range fields {
		s.draft[f] = reference.Parse(fm[f])
	}
	s.activate(active)
	return s, nil
}

// ID returns the registry id of the session, empty when unregistered.
func (s *Session) ID() string { return s.id }

// DocID returns the document being edited.
func (s *Session) DocID() string { return s.docID }

// Fields returns the configured fields in order.
func (s *Session) Fields() []string { return slices.Clone(s.fields) }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active returns the field currently being edited.
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Displayed returns the active field's entries in display order.
func (s *Session) Displayed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.displayed)
}

// Draft returns a copy of every field's working list, with the displayed
// ordering of the active field applied.
func (s *Session) Draft() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flush()
	out := make(map[string][]string, len(s.draft))
	for k, v := range s.draft {
		out[k] = slices.Clone(v)
	}
	return out
}

// SwitchField flushes the displayed ordering and makes field active.
func (s *Session) SwitchField(field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return ErrClosed
	}
	s.flush()
	s.activate(field)
	return nil
}

// Append adds entry as the last element of the active field.
func (s *Session) Append(entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return ErrClosed
	}
	s.flush()
	s.draft[s.active] = append(s.draft[s.active], entry)
	s.displayed = slices.Clone(s.draft[s.active])
	return nil
}

// Reorder makes order the authoritative ordering of the active field. order
// must contain exactly the displayed entries.
func (s *Session) Reorder(order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return ErrClosed
	}
	if !sameMultiset(s.displayed, order) {
		return ErrNotPermutation
	}
	s.displayed = slices.Clone(order)
	return nil
}

// Move shifts the entry at position from to position to, as keyboard
// reordering does. Out-of-range positions leave the list unchanged.
func (s *Session) Move(from, to int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return false, ErrClosed
	}
	n := len(s.displayed)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return false, nil
	}
	e := s.displayed[from]
	s.displayed = slices.Delete(s.displayed, from, from+1)
	s.displayed = slices.Insert(s.displayed, to, e)
	return true, nil
}

// Remove deletes the displayed entry at pos. It reports false when pos is
// out of range.
func (s *Session) Remove(pos int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return false, ErrClosed
	}
	if pos < 0 || pos >= len(s.displayed) {
		return false, nil
	}
	s.displayed = slices.Delete(s.displayed, pos, pos+1)
	s.flush()
	return true, nil
}

// Cancel discards the draft without writing anything.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = StateCancelled
	s.draft = nil
	s.displayed = nil
	s.mu.Unlock()
	s.closed()
	return nil
}

// flush stores the displayed ordering into the draft. Callers hold mu.
func (s *Session) flush() {
	if s.state != StateOpen {
		return
	}
	s.draft[s.active] = slices.Clone(s.displayed)
}

// activate selects field, falling back to the first configured field.
// Callers hold mu.
func (s *Session) activate(field string) {
	if !slices.Contains(s.fields, field) {
		field = s.fields[0]
	}
	s.active = field
	s.displayed = slices.Clone(s.draft[field])
}

func (s *Session) closed() {
	if s.onClose != nil {
		s.onClose(s)
	}
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, e := range a {
		counts[e]++
	}
	for _, e := range b {
		counts[e]--
		if counts[e] < 0 {
			return false
		}
	}
	return true
}
