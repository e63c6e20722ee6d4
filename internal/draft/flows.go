package draft

import (
	"context"
	"errors"

	"github.com/starford/refdeck/internal/reference"
)

// NotePicker lets the user choose a target document and an optional subpath.
// It returns reference.ErrNoValue when the user picks nothing.
type NotePicker interface {
	PickNote(ctx context.Context, source string) (target, subpath string, err error)
}

// URLPrompt asks the user for a URL. It returns reference.ErrNoValue when
// the prompt is dismissed.
type URLPrompt interface {
	PromptURL(ctx context.Context) (string, error)
}

// LinkTexter produces the link text for target as seen from source.
type LinkTexter interface {
	LinkText(target, source string) string
}

// AddNote runs the note-reference flow and appends the produced link to the
// active field. It reports false, with no state change, when the user
// abandons the picker.
func (s *Session) AddNote(ctx context.Context, picker NotePicker, links LinkTexter) (string, bool, error) {
	if s.State() != StateOpen {
		return "", false, ErrClosed
	}
	target, subpath, err := picker.PickNote(ctx, s.docID)
	if errors.Is(err, reference.ErrNoValue) || (err == nil && target == "") {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	entry := reference.NoteLink(links.LinkText(target, s.docID), subpath)
	if err := s.Append(entry); err != nil {
		return "", false, err
	}
	return entry, true, nil
}

// AddURL runs the URL flow. Empty or dismissed input is a no-op.
func (s *Session) AddURL(ctx context.Context, prompt URLPrompt) (string, bool, error) {
	if s.State() != StateOpen {
		return "", false, ErrClosed
	}
	input, err := prompt.PromptURL(ctx)
	if errors.Is(err, reference.ErrNoValue) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	entry, ok := reference.URLEntry(input)
	if !ok {
		return "", false, nil
	}
	if err := s.Append(entry); err != nil {
		return "", false, err
	}
	return entry, true, nil
}

// Fixed answers a picker or prompt with preset values; it backs
// non-interactive callers such as the HTTP API.
type Fixed struct {
	Target  string
	Subpath string
	URL     string
}

// PickNote implements NotePicker.
func (f Fixed) PickNote(context.Context, string) (string, string, error) {
	if f.Target == "" {
		return "", "", reference.ErrNoValue
	}
	return f.Target, f.Subpath, nil
}

// PromptURL implements URLPrompt.
func (f Fixed) PromptURL(context.Context) (string, error) {
	if f.URL == "" {
		return "", reference.ErrNoValue
	}
	return f.URL, nil
}
