// Package refservice coordinates the document store, the reference index,
// the presentation surface and the editing sessions behind the HTTP, MCP and
// CLI front ends.
package refservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/starford/refdeck/internal/apperr"
	"github.com/starford/refdeck/internal/docstore"
	"github.com/starford/refdeck/internal/draft"
	"github.com/starford/refdeck/internal/index"
	"github.com/starford/refdeck/internal/models"
	"github.com/starford/refdeck/internal/preview"
	"github.com/starford/refdeck/internal/reference"
	"github.com/starford/refdeck/internal/section"
	"github.com/starford/refdeck/internal/sse"
	"github.com/starford/refdeck/internal/view"
)

// Publisher receives document change notifications.
type Publisher interface {
	PublishDocumentEvent(kind, path, signature string)
}

// Options configures the service.
type Options struct {
	View         view.Options
	DefaultField string
}

// Referrer is one place in the vault that references an entry.
type Referrer struct {
	Source   string `json:"source"`
	Field    string `json:"field"`
	Position int    `json:"position"`
	Entry    string `json:"entry"`
}

// Service is the reference application service.
type Service struct {
	docs     *docstore.Store
	db       index.ReferenceIndex
	surface  *view.Surface
	sessions *draft.Registry
	preview  *preview.Renderer
	events   Publisher
	logger   *slog.Logger

	fields       []string
	defaultField string
}

// New creates a Service. events may be nil.
func New(docs *docstore.Store, db index.ReferenceIndex, events Publisher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	fields := slices.Clone(section.Fields(opts.View.Fields))
	opts.View.Fields = fields
	def := opts.DefaultField
	if !slices.Contains(fields, def) {
		def = fields[0]
	}
	return &Service{
		docs:         docs,
		db:           db,
		surface:      view.NewSurface(opts.View),
		sessions:     draft.NewRegistry(),
		preview:      preview.New(docs),
		events:       events,
		logger:       logger,
		fields:       fields,
		defaultField: def,
	}
}

// Fields returns the configured reference fields.
func (s *Service) Fields() []string {
	return slices.Clone(s.fields)
}

// DefaultField returns the field sessions start on.
func (s *Service) DefaultField() string {
	return s.defaultField
}

// Docs returns the document store.
func (s *Service) Docs() *docstore.Store {
	return s.docs
}

// Panel renders the reference panel of docID.
func (s *Service) Panel(ctx context.Context, docID string) (view.Panel, error) {
	fm, err := s.docs.Fields(ctx, docID)
	if err != nil {
		return view.Panel{}, err
	}
	return s.surface.Render(docID, fm), nil
}

// ToggleCollapse flips the collapsed state of key in docID's panel and
// returns the new state.
func (s *Service) ToggleCollapse(_ context.Context, docID, key string) (bool, error) {
	if docID == "" || key == "" {
		return false, apperr.ErrInvalid
	}
	return s.surface.Toggle(docID, key), nil
}

// SearchDocuments fuzzy-searches vault documents by path and title.
func (s *Service) SearchDocuments(ctx context.Context, query string, limit int) ([]docstore.Match, error) {
	return s.docs.Search(ctx, query, limit)
}

// SearchText runs a full-text query over indexed document titles, bodies
// and tags.
func (s *Service) SearchText(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.ErrInvalid
	}
	return s.db.Search(query, limit)
}

// Preview renders the content entry points at, as seen from source.
func (s *Service) Preview(ctx context.Context, entry, source string) (preview.Result, error) {
	if strings.TrimSpace(entry) == "" {
		return preview.Result{}, apperr.ErrInvalid
	}
	return s.preview.Render(ctx, entry, source)
}

// Referrers lists every reference in the vault that points at the same
// target as entry. entry may be a raw reference ("[[Note]]", a URL, text)
// or a document path ("folder/Note.md").
func (s *Service) Referrers(ctx context.Context, entry string) ([]Referrer, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, apperr.ErrInvalid
	}
	ref := reference.Classify(entry)
	if ref.Kind() == reference.KindText && s.docs.Files().Exists(entry) {
		ref = reference.Classify("[[" + strings.TrimSuffix(entry, path.Ext(entry)) + "]]")
	}

	note, isNote := ref.(reference.NoteReference)
	if !isNote || note.Subpath != "" {
		rows, err := s.db.Referrers(string(ref.Identity()))
		if err != nil {
			return nil, err
		}
		return toReferrers(rows), nil
	}

	// A note can be linked by its bare name or by any path suffix; collect
	// every spelling, then keep the rows that resolve to the same document.
	target, ok := s.docs.Resolve(note.Target, "")
	if !ok {
		rows, err := s.db.Referrers(string(ref.Identity()))
		if err != nil {
			return nil, err
		}
		return toReferrers(rows), nil
	}
	var out []Referrer
	seen := make(map[string]struct{})
	for _, spelling := range spellings(target) {
		rows, err := s.db.Referrers(string(reference.Identify(reference.NoteLink(spelling, ""))))
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			n, ok := reference.Classify(r.Entry).(reference.NoteReference)
			if !ok {
				continue
			}
			if resolved, ok := s.docs.Resolve(n.Target, r.Source); !ok || resolved != target {
				continue
			}
			key := fmt.Sprintf("%s\x00%s\x00%d", r.Source, r.Field, r.Position)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Referrer{Source: r.Source, Field: r.Field, Position: r.Position, Entry: r.Entry})
		}
	}
	slices.SortFunc(out, func(a, b Referrer) int {
		if c := strings.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		if c := strings.Compare(a.Field, b.Field); c != 0 {
			return c
		}
		return a.Position - b.Position
	})
	return out, nil
}

// HandleChange reacts to a vault change reported by the watcher. Panels are
// re-rendered and announced only when the reference fields changed.
func (s *Service) HandleChange(ctx context.Context, kind, docID string) {
	if kind == index.EventDeleted {
		s.surface.Forget(docID)
		s.publish(sse.KindDeleted, docID, "")
		return
	}
	if kind == index.EventCreated {
		s.publish(sse.KindCreated, docID, "")
	}
	fm, err := s.docs.Fields(ctx, docID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn("refservice: read fields failed", slog.String("path", docID), slog.String("error", err.Error()))
		}
		return
	}
	if p, changed := s.surface.Refresh(docID, fm); changed {
		s.logger.Debug("refservice: references changed", slog.String("path", docID), slog.String("signature", string(p.Signature)))
		s.publish(sse.KindReferencesChanged, docID, string(p.Signature))
	}
}

// Reindex re-reads docID from disk and updates its index rows.
func (s *Service) Reindex(docID string) error {
	data, err := s.docs.Files().Read(docID)
	if errors.Is(err, os.ErrNotExist) {
		return s.db.DeleteNote(docID)
	}
	if err != nil {
		return err
	}
	return index.IndexFile(s.db, s.fields, docID, data)
}

// Close cancels open sessions and drops presentation state.
func (s *Service) Close() {
	s.sessions.CancelAll()
	s.surface.Close()
}

func (s *Service) publish(kind, docID, sig string) {
	if s.events != nil {
		s.events.PublishDocumentEvent(kind, docID, sig)
	}
}

// spellings lists the link texts that can name target: its path without
// extension and every shorter path suffix down to the bare name.
func spellings(target string) []string {
	full := strings.TrimSuffix(target, path.Ext(target))
	parts := strings.Split(full, "/")
	out := make([]string, 0, len(parts))
	for i := range parts {
		out = append(out, strings.Join(parts[i:], "/"))
	}
	return out
}

func toReferrers(rows []models.ReferenceRow) []Referrer {
	out := make([]Referrer, 0, len(rows))
	for _, r := range rows {
		out = append(out, Referrer{Source: r.Source, Field: r.Field, Position: r.Position, Entry: r.Entry})
	}
	return out
}
