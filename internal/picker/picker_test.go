package picker

import (
	"fmt"
	"testing"

	"github.com/erikgeiser/promptkit"
	"github.com/ktr0731/go-fuzzyfinder"
	"github.com/stretchr/testify/assert"

	"github.com/starford/refdeck/internal/docstore"
	"github.com/starford/refdeck/internal/reference"
)

func TestHeadings(t *testing.T) {
	body := "# Top\n\ntext\n\n## Second ##\n```\n# not a heading\n```\n#tag line\n####### too deep\n### Third\n"
	assert.Equal(t, []string{"Top", "Second ##", "Third"}, headings(body))
}

func TestAbortMapsToNoValue(t *testing.T) {
	assert.ErrorIs(t, abort(fuzzyfinder.ErrAbort), reference.ErrNoValue)
	assert.ErrorIs(t, abort(fmt.Errorf("wrapped: %w", promptkit.ErrAborted)), reference.ErrNoValue)

	other := fmt.Errorf("boom")
	assert.Equal(t, other, abort(other))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "notes/a", label(docstore.Match{ID: "notes/a.md"}))
	assert.Equal(t, "b", label(docstore.Match{ID: "b.md", Title: "B"}))
	assert.Equal(t, "c  Some Title", label(docstore.Match{ID: "c.md", Title: "Some Title"}))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, validateURL(""))
	assert.NoError(t, validateURL("https://x.io"))
	assert.Error(t, validateURL("ftp://x.io"))
}

func TestActiveFirst(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, activeFirst([]string{"a", "b", "c"}, "b"))
	assert.Equal(t, []string{"a", "b"}, activeFirst([]string{"a", "b"}, "missing"))
}
