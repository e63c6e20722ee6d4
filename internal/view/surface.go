// Package view holds the presentation state of a reference panel: which
// entries are collapsed per document, and the last rendered signature so that
// unrelated metadata edits do not trigger a re-render.
package view

import (
	"sync"

	"github.com/starford/refdeck/internal/reference"
	"github.com/starford/refdeck/internal/section"
	"github.com/starford/refdeck/internal/signature"
)

// Options mirrors the display settings of the panel.
type Options struct {
	Fields      []string
	Section     section.Options
	ShowHeaders bool
}

// Entry is one rendered reference.
type Entry struct {
	Raw         string         `json:"raw"`
	Kind        reference.Kind `json:"kind"`
	Display     string         `json:"display"`
	Identity    string         `json:"identity"`
	CollapseKey string         `json:"collapse_key"`
	Collapsed   bool           `json:"collapsed"`
	Target      string         `json:"target,omitempty"`
	Subpath     string         `json:"subpath,omitempty"`
}

// SectionView is a rendered section.
type SectionView struct {
	Field   string  `json:"field"`
	Entries []Entry `json:"entries"`
}

// Panel is the rendered reference panel of one document.
type Panel struct {
	DocID       string              `json:"doc_id"`
	Signature   signature.Signature `json:"signature"`
	ShowHeaders bool                `json:"show_headers"`
	Sections    []SectionView       `json:"sections"`
}

// Surface is the state owned by one presentation surface. Collapse state
// lives as long as the surface; Close clears it.
type Surface struct {
	opts    Options
	tracker *signature.Tracker

	mu        sync.Mutex
	collapsed map[string]map[string]struct{}
}

// NewSurface creates a surface with opts.
func NewSurface(opts Options) *Surface {
	return &Surface{
		opts:      opts,
		tracker:   signature.NewTracker(),
		collapsed: make(map[string]map[string]struct{}),
	}
}

// Options returns the display settings.
func (s *Surface) Options() Options {
	return s.opts
}

// Render builds the panel of docID from its fields and records its signature.
func (s *Surface) Render(docID string, fm map[string]any) Panel {
	sig := signature.Compute(fm, s.opts.Fields)
	s.tracker.Observe(docID, sig)
	return s.render(docID, fm, sig)
}

// Refresh re-renders docID only when its reference fields changed since the
// last Render or Refresh. It reports whether a new panel was produced.
func (s *Surface) Refresh(docID string, fm map[string]any) (Panel, bool) {
	sig := signature.Compute(fm, s.opts.Fields)
	if !s.tracker.Observe(docID, sig) {
		return Panel{}, false
	}
	return s.render(docID, fm, sig), true
}

// Forget drops the tracked signature of docID, e.g. when it is deleted.
// Collapse state is kept; stale keys simply never match.
func (s *Surface) Forget(docID string) {
	s.tracker.Forget(docID)
}

// Toggle flips the collapsed state of key in docID and returns the new state.
func (s *Surface) Toggle(docID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.collapsed[docID]
	if _, ok := set[key]; ok {
		delete(set, key)
		return false
	}
	if set == nil {
		set = make(map[string]struct{})
		s.collapsed[docID] = set
	}
	set[key] = struct{}{}
	return true
}

// SetCollapsed sets the collapsed state of key in docID.
func (s *Surface) SetCollapsed(docID, key string, collapsed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.collapsed[docID]
	if !collapsed {
		delete(set, key)
		return
	}
	if set == nil {
		set = make(map[string]struct{})
		s.collapsed[docID] = set
	}
	set[key] = struct{}{}
}

// IsCollapsed reports whether key is collapsed in docID.
func (s *Surface) IsCollapsed(docID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collapsed[docID][key]
	return ok
}

// Close tears down the surface state.
func (s *Surface) Close() {
	s.mu.Lock()
	s.collapsed = make(map[string]map[string]struct{})
	s.mu.Unlock()
	s.tracker.Reset()
}

func (s *Surface) render(docID string, fm map[string]any, sig signature.Signature) Panel {
	sections := section.Build(fm, s.opts.Fields, s.opts.Section)
	// Key form follows the configured fields, not the sections that happen
	// to be non-empty, so collapse state survives a field filling up.
	qualify := len(section.Fields(s.opts.Fields)) > 1

	p := Panel{
		DocID:       docID,
		Signature:   sig,
		ShowHeaders: s.opts.ShowHeaders,
		Sections:    make([]SectionView, 0, len(sections)),
	}
	for _, sec := range sections {
		sv := SectionView{Field: sec.Field, Entries: make([]Entry, 0, len(sec.Entries))}
		for _, ref := range sec.Entries {
			id := ref.Identity()
			key := string(id)
			if qualify {
				key = reference.CollapseKey(sec.Field, id)
			}
			e := Entry{
				Raw:         ref.Raw(),
				Kind:        ref.Kind(),
				Display:     ref.Display(),
				Identity:    string(id),
				CollapseKey: key,
				Collapsed:   s.IsCollapsed(docID, key),
			}
			if n, ok := ref.(reference.NoteReference); ok {
				e.Target = n.Target
				e.Subpath = n.Subpath
			}
			sv.Entries = append(sv.Entries, e)
		}
		p.Sections = append(p.Sections, sv)
	}
	return p
}
