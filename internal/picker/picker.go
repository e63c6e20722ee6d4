// Package picker implements the interactive terminal flows used by the CLI:
// a fuzzy note finder with an optional heading choice, and a URL prompt.
package picker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erikgeiser/promptkit"
	"github.com/erikgeiser/promptkit/selection"
	"github.com/erikgeiser/promptkit/textinput"
	"github.com/ktr0731/go-fuzzyfinder"

	"github.com/starford/refdeck/internal/docstore"
	"github.com/starford/refdeck/internal/models"
	"github.com/starford/refdeck/internal/reference"
)

// maxCandidates bounds the number of documents offered by the finder.
const maxCandidates = 5000

// wholeNote is the heading choice meaning "no subpath".
const wholeNote = "(whole note)"

// Catalog lists and reads vault documents.
type Catalog interface {
	Search(ctx context.Context, query string, limit int) ([]docstore.Match, error)
	Document(ctx context.Context, docID string) (*models.Document, error)
}

// Terminal runs the flows on the controlling terminal.
type Terminal struct {
	docs Catalog
}

// New creates a Terminal picker over docs.
func New(docs Catalog) *Terminal {
	return &Terminal{docs: docs}
}

// PickNote lets the user fuzzy-find a target note, then choose one of its
// headings. Aborting either step returns reference.ErrNoValue.
func (t *Terminal) PickNote(ctx context.Context, source string) (string, string, error) {
	matches, err := t.docs.Search(ctx, "", maxCandidates)
	if err != nil {
		return "", "", fmt.Errorf("picker: list documents: %w", err)
	}
	candidates := make([]docstore.Match, 0, len(matches))
	for _, m := range matches {
		if m.ID != source {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", "", reference.ErrNoValue
	}

	idx, err := fuzzyfinder.Find(candidates,
		func(i int) string { return label(candidates[i]) },
		fuzzyfinder.WithContext(ctx),
		fuzzyfinder.WithHeader("Add reference from "+source),
		fuzzyfinder.WithPreviewWindow(func(i, _, _ int) string {
			if i < 0 {
				return ""
			}
			doc, err := t.docs.Document(ctx, candidates[i].ID)
			if err != nil {
				return "Error reading document"
			}
			return doc.Body
		}),
	)
	if err != nil {
		return "", "", abort(err)
	}
	target := candidates[idx].ID

	doc, err := t.docs.Document(ctx, target)
	if err != nil {
		return "", "", err
	}
	heads := headings(doc.Body)
	if len(heads) == 0 {
		return target, "", nil
	}

	sel := selection.New("Link to a heading?", append([]string{wholeNote}, heads...))
	sel.PageSize = 10
	choice, err := sel.RunPrompt()
	if err != nil {
		return "", "", abort(err)
	}
	if choice == wholeNote {
		return target, "", nil
	}
	return target, choice, nil
}

// PromptURL asks for a URL. Dismissing the prompt returns reference.ErrNoValue.
func (t *Terminal) PromptURL(context.Context) (string, error) {
	in := textinput.New("URL:")
	in.Placeholder = "https://"
	in.Validate = validateURL
	out, err := in.RunPrompt()
	if err != nil {
		return "", abort(err)
	}
	return out, nil
}

// SelectField asks which reference field to edit; active is offered first.
func (t *Terminal) SelectField(fields []string, active string) (string, error) {
	if len(fields) <= 1 {
		return active, nil
	}
	sel := selection.New("Field:", activeFirst(fields, active))
	sel.Filter = nil
	out, err := sel.RunPrompt()
	if err != nil {
		return "", abort(err)
	}
	return out, nil
}

func activeFirst(fields []string, active string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == active {
			out = append(out, f)
		}
	}
	for _, f := range fields {
		if f != active {
			out = append(out, f)
		}
	}
	return out
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if !reference.IsURL(strings.TrimSpace(s)) {
		return errors.New("expected an http(s) URL")
	}
	return nil
}

func abort(err error) error {
	if errors.Is(err, fuzzyfinder.ErrAbort) || errors.Is(err, promptkit.ErrAborted) {
		return reference.ErrNoValue
	}
	return err
}

func label(m docstore.Match) string {
	name := strings.TrimSuffix(m.ID, ".md")
	if m.Title == "" || strings.EqualFold(m.Title, name) {
		return name
	}
	return name + "  " + m.Title
}

// headings lists the ATX headings of body, skipping fenced code.
func headings(body string) []string {
	var out []string
	fenced := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fenced = !fenced
			continue
		}
		if fenced || !strings.HasPrefix(trimmed, "#") {
			continue
		}
		text := strings.TrimLeft(trimmed, "#")
		if len(trimmed)-len(text) > 6 || (text != "" && text[0] != ' ' && text[0] != '\t') {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return out
}
