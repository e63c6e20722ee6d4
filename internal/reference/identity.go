package reference

import "strings"

const (
	prefixNote = "wikilink:"
	prefixURL  = "url:"
	prefixText = "txt:"
)

// Identity is a content-derived key for a reference. It does not depend on
// list position, originating field or link alias.
type Identity string

// Identify returns the identity of a raw entry.
func Identify(entry string) Identity {
	return Classify(entry).Identity()
}

// CollapseKey qualifies id with the field it is displayed under, so that
// collapsing one occurrence leaves the same reference under another field
// untouched. Dedup bookkeeping uses the bare identity instead.
func CollapseKey(field string, id Identity) string {
	return "field:" + field + "|" + string(id)
}

// NoteLink builds a new [[...]] entry from link text produced by the
// document store and an optional subpath. A bare subpath is a heading, a
// "^id" subpath a block anchor; both end up after "#".
func NoteLink(linkText, subpath string) string {
	subpath = strings.TrimSpace(subpath)
	if subpath != "" && !strings.HasPrefix(subpath, "#") {
		subpath = "#" + subpath
	}
	return "[[" + linkText + subpath + "]]"
}

// URLEntry turns typed URL input into an entry: trimmed and otherwise
// verbatim. Only empty input reports false; scheme checks belong to the
// caller (see IsURL).
func URLEntry(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	return s, true
}
