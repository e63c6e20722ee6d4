// Package section groups the reference lists of a document into ordered,
// optionally deduplicated and truncated sections for display.
package section

import "github.com/starford/refdeck/internal/reference"

// DefaultField is used when no fields are configured.
const DefaultField = "related"

// Options controls how sections are built.
type Options struct {
	// MaxItemsPerField caps each field's list; 0 means unlimited.
	MaxItemsPerField int
	// DedupeAcrossFields drops entries already shown under an earlier field.
	DedupeAcrossFields bool
}

// Section is the list of references declared under one field.
type Section struct {
	Field   string
	Entries []reference.Reference
}

// Raw returns the entries as stored strings.
func (s Section) Raw() []string {
	out := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Raw()
	}
	return out
}

// Fields returns configured, or the default field when none are configured.
func Fields(configured []string) []string {
	if len(configured) == 0 {
		return []string{DefaultField}
	}
	return configured
}

// Build reads every configured field from fm, in order, and returns the
// non-empty sections. It never fails: absent or malformed fields contribute
// nothing.
func Build(fm map[string]any, configured []string, opts Options) []Section {
	fields := Fields(configured)

	var seen map[reference.Identity]struct{}
	if opts.DedupeAcrossFields {
		seen = make(map[reference.Identity]struct{})
	}

	out := make([]Section, 0, len(fields))
	for _, field := range fields {
		entries := reference.Parse(fm[field])
		if opts.MaxItemsPerField > 0 && len(entries) > opts.MaxItemsPerField {
			entries = entries[:opts.MaxItemsPerField]
		}

		refs := make([]reference.Reference, 0, len(entries))
		for _, e := range entries {
			ref := reference.Classify(e)
			if seen != nil {
				id := ref.Identity()
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			refs = append(refs, ref)
		}

		if len(refs) == 0 {
			continue
		}
		out = append(out, Section{Field: field, Entries: refs})
	}
	return out
}
