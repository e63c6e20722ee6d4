package refservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/refdeck/internal/apperr"
	"github.com/starford/refdeck/internal/draft"
	"github.com/starford/refdeck/internal/reference"
	"github.com/starford/refdeck/internal/sse"
	"github.com/starford/refdeck/internal/view"
)

// SessionView is the client-facing state of an editing session.
type SessionView struct {
	ID        string              `json:"id"`
	DocID     string              `json:"doc_id"`
	State     draft.State         `json:"state"`
	Fields    []string            `json:"fields"`
	Active    string              `json:"active"`
	Displayed []string            `json:"displayed"`
	Draft     map[string][]string `json:"draft"`
}

// CommitView is returned after a successful commit.
type CommitView struct {
	Result draft.CommitResult `json:"result"`
	Panel  view.Panel         `json:"panel"`
}

// OpenSession starts an editing session on docID. field selects the initial
// field; empty means the configured default.
func (s *Service) OpenSession(ctx context.Context, docID, field string) (SessionView, error) {
	if docID == "" {
		return SessionView{}, apperr.ErrInvalid
	}
	if field == "" {
		field = s.defaultField
	}
	sess, err := s.sessions.Open(ctx, s.docs, docID, s.fields, field)
	if err != nil {
		return SessionView{}, err
	}
	s.logger.Debug("refservice: session opened", slog.String("id", sess.ID()), slog.String("path", docID))
	return sessionView(sess), nil
}

// Session returns the state of session id.
func (s *Service) Session(id string) (SessionView, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return SessionView{}, err
	}
	return sessionView(sess), nil
}

// SwitchField makes field the active field of session id.
func (s *Service) SwitchField(id, field string) (SessionView, error) {
	return s.mutate(id, func(sess *draft.Session) error { return sess.SwitchField(field) })
}

// Append adds a raw entry to the active field.
func (s *Service) Append(id, entry string) (SessionView, error) {
	return s.mutate(id, func(sess *draft.Session) error { return sess.Append(entry) })
}

// AppendNote adds a link to target (a vault path or link text) with an
// optional subpath to the active field.
func (s *Service) AppendNote(ctx context.Context, id, target, subpath string) (SessionView, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return SessionView{}, err
	}
	resolved, ok := s.docs.Resolve(target, sess.DocID())
	if !ok {
		return SessionView{}, fmt.Errorf("refservice: target %q: %w", target, apperr.ErrNotFound)
	}
	if _, _, err := sess.AddNote(ctx, draft.Fixed{Target: resolved, Subpath: subpath}, s.docs); err != nil {
		return SessionView{}, err
	}
	return sessionView(sess), nil
}

// AppendURL adds a URL to the active field. Input that is not an http(s) URL
// leaves the draft unchanged.
func (s *Service) AppendURL(ctx context.Context, id, url string) (SessionView, bool, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return SessionView{}, false, err
	}
	if !reference.IsURL(strings.TrimSpace(url)) {
		return sessionView(sess), false, nil
	}
	_, added, err := sess.AddURL(ctx, draft.Fixed{URL: url})
	if err != nil {
		return SessionView{}, false, err
	}
	return sessionView(sess), added, nil
}

// Reorder replaces the displayed order of the active field.
func (s *Service) Reorder(id string, order []string) (SessionView, error) {
	return s.mutate(id, func(sess *draft.Session) error { return sess.Reorder(order) })
}

// Move moves the entry at from to position to in the active field.
func (s *Service) Move(id string, from, to int) (SessionView, error) {
	return s.mutate(id, func(sess *draft.Session) error {
		_, err := sess.Move(from, to)
		return err
	})
}

// Remove drops the entry at pos from the active field.
func (s *Service) Remove(id string, pos int) (SessionView, error) {
	return s.mutate(id, func(sess *draft.Session) error {
		_, err := sess.Remove(pos)
		return err
	})
}

// Commit writes session id back to its document, reindexes the document and
// returns the refreshed panel. A failed commit leaves the session open.
func (s *Service) Commit(ctx context.Context, id string) (CommitView, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return CommitView{}, err
	}
	res, err := sess.Commit(ctx)
	if err != nil {
		s.logger.Warn("refservice: commit failed",
			slog.String("id", id),
			slog.String("path", sess.DocID()),
			slog.Any("written", res.Written),
			slog.String("error", err.Error()))
		return CommitView{Result: res}, err
	}
	return s.afterCommit(ctx, sess.DocID(), res)
}

// Cancel discards session id.
func (s *Service) Cancel(id string) error {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return err
	}
	return sess.Cancel()
}

// Edit runs fn inside a short-lived session on field of docID and commits
// it. It is used by callers without an interactive session, and respects the
// one-session-per-document rule.
func (s *Service) Edit(ctx context.Context, docID, field string, fn func(*draft.Session) error) (CommitView, error) {
	if field != "" && !slices.Contains(s.fields, field) {
		return CommitView{}, fmt.Errorf("refservice: unknown field %q: %w", field, apperr.ErrInvalid)
	}
	if field == "" {
		field = s.defaultField
	}
	sess, err := s.sessions.Open(ctx, s.docs, docID, s.fields, field)
	if err != nil {
		return CommitView{}, err
	}
	if err := fn(sess); err != nil {
		_ = sess.Cancel()
		return CommitView{}, err
	}
	res, err := sess.Commit(ctx)
	if err != nil {
		_ = sess.Cancel()
		return CommitView{Result: res}, err
	}
	return s.afterCommit(ctx, docID, res)
}

// AddReference appends entry to field of docID.
func (s *Service) AddReference(ctx context.Context, docID, field, entry string) (CommitView, error) {
	return s.Edit(ctx, docID, field, func(sess *draft.Session) error { return sess.Append(entry) })
}

// AddNoteReference links docID to target (with an optional subpath) in field.
func (s *Service) AddNoteReference(ctx context.Context, docID, field, target, subpath string) (CommitView, error) {
	resolved, ok := s.docs.Resolve(target, docID)
	if !ok {
		return CommitView{}, fmt.Errorf("refservice: target %q: %w", target, apperr.ErrNotFound)
	}
	return s.Edit(ctx, docID, field, func(sess *draft.Session) error {
		_, _, err := sess.AddNote(ctx, draft.Fixed{Target: resolved, Subpath: subpath}, s.docs)
		return err
	})
}

// RemoveReference drops the entry at pos from field of docID.
func (s *Service) RemoveReference(ctx context.Context, docID, field string, pos int) (CommitView, error) {
	return s.Edit(ctx, docID, field, func(sess *draft.Session) error {
		if ok, _ := sess.Remove(pos); !ok {
			return fmt.Errorf("refservice: position %d: %w", pos, apperr.ErrInvalid)
		}
		return nil
	})
}

// MoveReference moves an entry of field of docID from one position to another.
func (s *Service) MoveReference(ctx context.Context, docID, field string, from, to int) (CommitView, error) {
	return s.Edit(ctx, docID, field, func(sess *draft.Session) error {
		if ok, _ := sess.Move(from, to); !ok {
			return fmt.Errorf("refservice: move %d to %d: %w", from, to, apperr.ErrInvalid)
		}
		return nil
	})
}

func (s *Service) afterCommit(ctx context.Context, docID string, res draft.CommitResult) (CommitView, error) {
	if len(res.Written) > 0 {
		if err := s.Reindex(docID); err != nil {
			s.logger.Warn("refservice: reindex failed", slog.String("path", docID), slog.String("error", err.Error()))
		}
	}
	fm, err := s.docs.Fields(ctx, docID)
	if err != nil {
		return CommitView{Result: res}, err
	}
	p, changed := s.surface.Refresh(docID, fm)
	if changed {
		s.publish(sse.KindReferencesChanged, docID, string(p.Signature))
	} else {
		p = s.surface.Render(docID, fm)
	}
	return CommitView{Result: res, Panel: p}, nil
}

func (s *Service) mutate(id string, fn func(*draft.Session) error) (SessionView, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return SessionView{}, err
	}
	if err := fn(sess); err != nil {
		if errors.Is(err, draft.ErrNotPermutation) {
			return SessionView{}, fmt.Errorf("%w: %w", apperr.ErrInvalid, err)
		}
		return SessionView{}, err
	}
	return sessionView(sess), nil
}

func sessionView(sess *draft.Session) SessionView {
	return SessionView{
		ID:        sess.ID(),
		DocID:     sess.DocID(),
		State:     sess.State(),
		Fields:    sess.Fields(),
		Active:    sess.Active(),
		Displayed: sess.Displayed(),
		Draft:     sess.Draft(),
	}
}
