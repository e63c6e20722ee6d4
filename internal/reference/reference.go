package reference

import (
	"errors"
	"strings"
)

// Kind tags a reference variant.
type Kind string

const (
	KindNote Kind = "note"
	KindURL  Kind = "url"
	KindText Kind = "text"
)

// ErrNoValue is returned by pickers and prompts when the user abandons input.
var ErrNoValue = errors.New("reference: no value")

// Reference is a classified entry. The concrete type is one of
// NoteReference, URLReference or PlainTextReference.
type Reference interface {
	Kind() Kind
	// Raw is the entry exactly as stored in the field.
	Raw() string
	// Identity is the content key of the reference.
	Identity() Identity
	// Display is the text shown for the reference.
	Display() string

	sealed()
}

// NoteReference is a [[target#subpath|alias]] link.
type NoteReference struct {
	raw     string
	Target  string
	Subpath string
	Alias   string
}

func (NoteReference) Kind() Kind { return KindNote }
func (r NoteReference) Raw() string { return r.raw }
func (NoteReference) sealed() {}
func (r NoteReference) Display() string {
	if r.Alias != "" {
		return r.Alias
	}
	if r.Subpath != "" {
		return r.Target + "#" + r.Subpath
	}
	return r.Target
}

// Identity ignores the alias.
func (r NoteReference) Identity() Identity {
	if r.Subpath == "" {
		return Identity(prefixNote + r.Target)
	}
	return Identity(prefixNote + r.Target + "#" + r.Subpath)
}

// URLReference is an http(s) URL used verbatim.
type URLReference struct {
	URL string
}

func (URLReference) Kind() Kind { return KindURL }
func (r URLReference) Raw() string { return r.URL }
func (r URLReference) Display() string { return r.URL }
func (r URLReference) Identity() Identity { return Identity(prefixURL + r.URL) }
func (URLReference) sealed() {}

// PlainTextReference is anything that is neither a note link nor a URL.
type PlainTextReference struct {
	Text string
}

func (PlainTextReference) Kind() Kind { return KindText }
func (r PlainTextReference) Raw() string { return r.Text }
func (r PlainTextReference) Display() string { return r.Text }
func (r PlainTextReference) Identity() Identity { return Identity(prefixText + r.Text) }
func (PlainTextReference) sealed() {}

// Classify parses entry into its reference variant. It is a pure function of
// the string.
func Classify(entry string) Reference {
	if inner, ok := wikilinkInner(entry); ok {
		return parseNote(entry, inner)
	}
	if IsURL(entry) {
		return URLReference{URL: entry}
	}
	return PlainTextReference{Text: entry}
}

// ClassifyAll classifies every entry, preserving order.
func ClassifyAll(entries []string) []Reference {
	out := make([]Reference, len(entries))
	for i, e := range entries {
		out[i] = Classify(e)
	}
	return out
}

func wikilinkInner(entry string) (string, bool) {
	if len(entry) < 4 || !strings.HasPrefix(entry, "[[") || !strings.HasSuffix(entry, "]]") {
		return "", false
	}
	inner := entry[2 : len(entry)-2]
	// [[a]] and [[b]] is two links, not one.
	if strings.Contains(inner, "[[") || strings.Contains(inner, "]]") {
		return "", false
	}
	return inner, true
}

func parseNote(raw, inner string) NoteReference {
	target, alias, _ := strings.Cut(inner, "|")
	var subpath string
	if i := strings.Index(target, "#"); i >= 0 {
		subpath = strings.TrimSpace(target[i+1:])
		target = target[:i]
	}
	target = stripMarkdownExt(strings.TrimSpace(target))
	return NoteReference{
		raw:     raw,
		Target:  target,
		Subpath: subpath,
		Alias:   strings.TrimSpace(alias),
	}
}

func stripMarkdownExt(target string) string {
	if len(target) > 3 && strings.EqualFold(target[len(target)-3:], ".md") {
		return target[:len(target)-3]
	}
	return target
}

// IsURL reports whether entry is an http(s) URL with something after the
// scheme. Classify uses it, and front ends use it to vet typed URLs.
func IsURL(entry string) bool {
	lower := strings.ToLower(entry)
	return (strings.HasPrefix(lower, "http://") && len(entry) > len("http://")) ||
		(strings.HasPrefix(lower, "https://") && len(entry) > len("https://"))
}
