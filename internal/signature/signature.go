// Package signature detects whether the reference fields of a document
// changed between two notifications.
package signature

import (
	"sync"

	"github.com/starford/refdeck/internal/checksum"
	"github.com/starford/refdeck/internal/reference"
	"github.com/starford/refdeck/internal/section"
)

// Signature is an opaque digest of the configured fields and their parsed
// entries. It is only meaningful for equality comparison.
type Signature string

type canonical struct {
	Fields  []string            `json:"fields"`
	Entries map[string][]string `json:"entries"`
}

// Compute returns the signature of the configured fields of fm. Entries are
// parsed but neither deduplicated nor truncated.
func Compute(fm map[string]any, configured []string) Signature {
	fields := section.Fields(configured)
	c := canonical{
		Fields:  fields,
		Entries: make(map[string][]string, len(fields)),
	}
	for _, f := range fields {
		c.Entries[f] = reference.Parse(fm[f])
	}
	// Map keys hash in sorted order; field order is carried by c.Fields.
	sum, err := checksum.SumJSON(c)
	if err != nil {
		return ""
	}
	return Signature(sum)
}

// Changed reports whether next differs from prev.
func Changed(prev, next Signature) bool {
	return prev != next
}

// Tracker remembers the last signature seen per document.
type Tracker struct {
	mu   sync.Mutex
	sigs map[string]Signature
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sigs: make(map[string]Signature)}
}

// Observe stores sig for docID and reports whether it differs from the
// previously stored signature. The first observation of a document is a
// change.
func (t *Tracker) Observe(docID string, sig Signature) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.sigs[docID]
	t.sigs[docID] = sig
	return !ok || Changed(prev, sig)
}

// Last returns the stored signature for docID.
func (t *Tracker) Last(docID string) (Signature, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sig, ok := t.sigs[docID]
	return sig, ok
}

// Forget drops the stored signature for docID.
func (t *Tracker) Forget(docID string) {
	t.mu.Lock()
	delete(t.sigs, docID)
	t.mu.Unlock()
}

// Reset drops every stored signature.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.sigs = make(map[string]Signature)
	t.mu.Unlock()
}
