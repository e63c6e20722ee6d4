// Package preview renders the content a reference points at: the target
// note (or one of its sections) for note references, a link for URLs and
// the text itself for plain entries.
package preview

import (
	"bytes"
	"context"
	"errors"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/starford/refdeck/internal/apperr"
	"github.com/starford/refdeck/internal/models"
	"github.com/starford/refdeck/internal/reference"
)

// Source looks up the documents a note reference can point at.
type Source interface {
	Resolve(linkPath, source string) (string, bool)
	Document(ctx context.Context, docID string) (*models.Document, error)
}

// Result is a rendered preview.
type Result struct {
	Entry  string         `json:"entry"`
	Kind   reference.Kind `json:"kind"`
	Target string         `json:"target,omitempty"`
	Found  bool           `json:"found"`
	HTML   string         `json:"html"`
}

// Renderer renders previews with goldmark.
type Renderer struct {
	src Source
	md  goldmark.Markdown
}

// New creates a Renderer reading notes from src.
func New(src Source) *Renderer {
	return &Renderer{
		src: src,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithExtensions(&externalLinks{}),
		),
	}
}

// Render previews entry as seen from the source document. A note that does
// not resolve yields an inline "not found" result rather than an error.
func (r *Renderer) Render(ctx context.Context, entry, source string) (Result, error) {
	ref := reference.Classify(entry)
	res := Result{Entry: entry, Kind: ref.Kind()}

	switch v := ref.(type) {
	case reference.URLReference:
		res.Found = true
		res.Target = v.URL
		out, err := r.markdown([]byte("<" + v.URL + ">"))
		if err != nil {
			return Result{}, err
		}
		res.HTML = out
		return res, nil

	case reference.PlainTextReference:
		res.Found = true
		out, err := r.markdown([]byte(v.Text))
		if err != nil {
			return Result{}, err
		}
		res.HTML = out
		return res, nil

	case reference.NoteReference:
		target, ok := r.src.Resolve(v.Target, source)
		if !ok {
			res.HTML = missing(v.Target)
			return res, nil
		}
		doc, err := r.src.Document(ctx, target)
		if errors.Is(err, apperr.ErrNotFound) {
			res.HTML = missing(v.Target)
			return res, nil
		}
		if err != nil {
			return Result{}, err
		}
		res.Found = true
		res.Target = target
		body := []byte(doc.Body)
		if v.Subpath != "" {
			body = r.extract(body, v.Subpath)
		}
		out, err := r.markdown(body)
		if err != nil {
			return Result{}, err
		}
		res.HTML = out
		return res, nil
	}
	return res, nil
}

func (r *Renderer) markdown(src []byte) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// extract narrows body to the heading section or block named by subpath. The
// whole body is returned when nothing matches.
func (r *Renderer) extract(body []byte, subpath string) []byte {
	doc := r.md.Parser().Parse(text.NewReader(body))
	if id, ok := strings.CutPrefix(subpath, "^"); ok {
		if out, found := block(doc, body, id); found {
			return out
		}
		return body
	}
	// Nested headings (a#b) are matched on their innermost component.
	if i := strings.LastIndexByte(subpath, '#'); i >= 0 {
		subpath = subpath[i+1:]
	}
	if out, found := section(doc, body, subpath); found {
		return out
	}
	return body
}

// section returns the heading named title and everything up to the next
// heading of the same or a higher level.
func section(doc ast.Node, body []byte, title string) ([]byte, bool) {
	var start, level = -1, 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok {
			continue
		}
		if start >= 0 && h.Level <= level {
			return body[start:lineStart(body, h)], true
		}
		if start < 0 && strings.EqualFold(strings.TrimSpace(string(h.Text(body))), strings.TrimSpace(title)) {
			start, level = lineStart(body, h), h.Level
		}
	}
	if start >= 0 {
		return body[start:], true
	}
	return nil, false
}

// block returns the first block whose last line ends in the ^id marker, with
// the marker removed.
func block(doc ast.Node, body []byte, id string) ([]byte, bool) {
	marker := "^" + id
	var out []byte
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := n.Lines()
		if lines == nil || lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		first, last := lines.At(0), lines.At(lines.Len()-1)
		tail := strings.TrimRight(string(last.Value(body)), " \t\r\n")
		if !strings.HasSuffix(tail, marker) {
			return ast.WalkContinue, nil
		}
		seg := strings.TrimRight(string(body[first.Start:last.Stop]), " \t\r\n")
		out = []byte(strings.TrimSpace(strings.TrimSuffix(seg, marker)))
		return ast.WalkStop, nil
	})
	return out, out != nil
}

func lineStart(body []byte, n ast.Node) int {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return 0
	}
	return bytes.LastIndexByte(body[:lines.At(0).Start], '\n') + 1
}

func missing(target string) string {
	return `<p class="preview-missing">Note not found: ` + html.EscapeString(target) + "</p>\n"
}

// externalLinks opens http(s) links in a new tab.
type externalLinks struct{}

func (e *externalLinks) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(
		util.Prioritized(&externalLinkTransformer{}, 100),
	))
}

type externalLinkTransformer struct{}

func (t *externalLinkTransformer) Transform(node *ast.Document, reader text.Reader, _ parser.Context) {
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch link := n.(type) {
		case *ast.Link:
			if external(link.Destination) {
				setBlank(link)
			}
		case *ast.AutoLink:
			if link.AutoLinkType == ast.AutoLinkURL && external(link.URL(reader.Source())) {
				setBlank(link)
			}
		}
		return ast.WalkContinue, nil
	})
}

func external(dest []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(dest)))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func setBlank(n ast.Node) {
	n.SetAttributeString("target", []byte("_blank"))
	n.SetAttributeString("rel", []byte("noopener noreferrer"))
}
