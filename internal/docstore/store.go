// Package docstore exposes vault documents as structured fields: it reads
// frontmatter, applies field patches, resolves note links and produces link
// text for new references.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/starford/refdeck/internal/apperr"
	"github.com/starford/refdeck/internal/checksum"
	"github.com/starford/refdeck/internal/models"
	"github.com/starford/refdeck/internal/parser"
	"github.com/starford/refdeck/internal/storage"
)

// Store adapts a storage.Provider to the field-level document interface.
type Store struct {
	files storage.Provider
}

// New creates a Store over files.
func New(files storage.Provider) *Store {
	return &Store{files: files}
}

// Files returns the underlying provider.
func (s *Store) Files() storage.Provider {
	return s.files
}

// Document reads and parses docID.
func (s *Store) Document(ctx context.Context, docID string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.files.Read(docID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return decode(docID, data)
}

// Fields returns the frontmatter fields of docID. A document without
// frontmatter has no fields.
func (s *Store) Fields(ctx context.Context, docID string) (map[string]any, error) {
	doc, err := s.Document(ctx, docID)
	if err != nil {
		return nil, err
	}
	return doc.Fields, nil
}

// SetFields applies patch to the frontmatter of docID and writes the file.
func (s *Store) SetFields(ctx context.Context, docID string, patch models.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.files.Read(docID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	out, err := parser.Rewrite(data, patch)
	if err != nil {
		return fmt.Errorf("docstore: rewrite %s: %w", docID, err)
	}
	if string(out) == string(data) {
		return nil
	}
	if err := s.files.Write(docID, out); err != nil {
		return fmt.Errorf("docstore: write %s: %w", docID, err)
	}
	return nil
}

// Resolve finds the document a link path points to, as seen from source.
// Lookup order: exact vault path, path relative to the source's folder, then
// a unique-by-shortest-path basename match.
func (s *Store) Resolve(linkPath, source string) (string, bool) {
	linkPath = strings.TrimSpace(linkPath)
	if linkPath == "" {
		return "", false
	}
	target := withExt(strings.TrimPrefix(linkPath, "/"))

	if s.files.Exists(target) {
		return target, true
	}
	if rel := path.Clean(path.Join(path.Dir(source), target)); !strings.HasPrefix(rel, "..") && s.files.Exists(rel) {
		return rel, true
	}

	metas, err := s.files.List("")
	if err != nil {
		return "", false
	}
	var best string
	for _, m := range metas {
		if !strings.EqualFold(path.Base(m.Path), path.Base(target)) {
			continue
		}
		if strings.Contains(linkPath, "/") && !strings.HasSuffix(strings.ToLower(m.Path), strings.ToLower(target)) {
			continue
		}
		if best == "" || len(m.Path) < len(best) || (len(m.Path) == len(best) && m.Path < best) {
			best = m.Path
		}
	}
	return best, best != ""
}

// LinkText returns the link text for target: the bare name when no other
// document shares it, the full vault path otherwise. The .md extension is
// dropped. source is accepted for parity with Resolve.
func (s *Store) LinkText(target, _ string) string {
	full := strings.TrimSuffix(target, path.Ext(target))
	base := path.Base(full)
	metas, err := s.files.List("")
	if err != nil {
		return full
	}
	n := 0
	for _, m := range metas {
		if strings.EqualFold(path.Base(m.Path), path.Base(target)) {
			n++
		}
	}
	if n == 1 {
		return base
	}
	return full
}

// Match is a fuzzy search hit over document paths and titles.
type Match struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Score int    `json:"score"`
}

// Search ranks vault documents against query. An empty query lists every
// document in path order.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	metas, err := s.files.List("")
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	targets := make([]string, len(metas))
	titles := make([]string, len(metas))
	for i, m := range metas {
		titles[i] = s.title(ctx, m.Path)
		targets[i] = strings.TrimSuffix(m.Path, path.Ext(m.Path))
		if titles[i] != "" {
			targets[i] += " " + titles[i]
		}
	}

	var out []Match
	if strings.TrimSpace(query) == "" {
		for i, m := range metas {
			out = append(out, Match{ID: m.Path, Title: titles[i]})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	} else {
		ranks := fuzzy.RankFindFold(query, targets)
		sort.Stable(ranks)
		for _, r := range ranks {
			out = append(out, Match{
				ID:    metas[r.OriginalIndex].Path,
				Title: titles[r.OriginalIndex],
				Score: r.Distance,
			})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) title(ctx context.Context, docID string) string {
	doc, err := s.Document(ctx, docID)
	if err != nil {
		return ""
	}
	return doc.Title
}

func decode(docID string, data []byte) (*models.Document, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	fields := res.Frontmatter
	if fields == nil {
		fields = map[string]any{}
	}
	return &models.Document{
		ID:       docID,
		Title:    res.Title,
		Fields:   fields,
		Body:     res.Body,
		Checksum: checksum.Sum(data),
	}, nil
}

func withExt(p string) string {
	if storage.IsDocument(p) {
		return p
	}
	return p + ".md"
}
