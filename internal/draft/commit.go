package draft

import (
	"context"
	"fmt"

	"github.com/starford/refdeck/internal/models"
	"github.com/starford/refdeck/internal/reference"
)

// CommitResult lists what a commit did, field by field.
type CommitResult struct {
	// Written holds the fields that were stored, in write order.
	Written []string `json:"written"`
	// Removed is the subset of Written that was deleted because its list became empty.
	Removed []string `json:"removed,omitempty"`
	// Unchanged holds the fields whose draft matched storage.
	Unchanged []string `json:"unchanged"`
}

// CommitError reports the field whose write failed. Fields listed in the
// accompanying CommitResult.Written were stored before the failure and are
// not rolled back.
type CommitError struct {
	Field string
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("draft: commit field %q: %v", e.Field, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Commit writes every configured field whose draft differs from what is
// currently stored. Writes are issued one field at a time, in configured
// order; the next write starts only after the previous one returned. An
// empty draft list removes the field.
//
// On success the session is closed. On failure the session stays open so
// the caller may retry; already-written fields then compare equal and are
// skipped.
func (s *Session) Commit(ctx context.Context) (CommitResult, error) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return CommitResult{}, ErrClosed
	}
	defer s.mu.Unlock()

	s.flush()

	var res CommitResult
	current, err := s.store.Fields(ctx, s.docID)
	if err != nil {
		return res, fmt.Errorf("draft: reload %s: %w", s.docID, err)
	}

	for _, field := range s.fields {
		next := s.draft[field]
		if reference.Equal(reference.Parse(current[field]), next) {
			res.Unchanged = append(res.Unchanged, field)
			continue
		}

		value := models.List(reference.Serialize(next))
		if len(next) == 0 {
			value = models.Remove()
		}
		if err := s.store.SetFields(ctx, s.docID, models.Patch{field: value}); err != nil {
			return res, &CommitError{Field: field, Err: err}
		}
		res.Written = append(res.Written, field)
		if value.Delete {
			res.Removed = append(res.Removed, field)
		}
	}

	s.state = StateCommitted
	s.draft = nil
	s.displayed = nil
	// onClose only takes the registry lock.
	s.closed()
	return res, nil
}

// Dirty reports whether any field of the draft differs from fm.
func (s *Session) Dirty(fm map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return false
	}
	s.flush()
	for _, field := range s.fields {
		if !reference.Equal(reference.Parse(fm[field]), s.draft[field]) {
			return true
		}
	}
	return false
}
