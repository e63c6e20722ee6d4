package section

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raws(sections []Section) map[string][]string {
	out := make(map[string][]string, len(sections))
	for _, s := range sections {
		out[s.Field] = s.Raw()
	}
	return out
}

func TestBuild_DedupeAcrossFields(t *testing.T) {
	fm := map[string]any{
		"a": []any{"[[X]]", "[[Y]]"},
		"b": []any{"[[Y]]", "[[Z]]"},
	}
	got := Build(fm, []string{"a", "b"}, Options{DedupeAcrossFields: true})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Field)
	assert.Equal(t, "b", got[1].Field)
	assert.Equal(t, map[string][]string{
		"a": {"[[X]]", "[[Y]]"},
		"b": {"[[Z]]"},
	}, raws(got))
}

func TestBuild_DedupeIgnoresAlias(t *testing.T) {
	fm := map[string]any{
		"a": []any{"[[Y|first]]"},
		"b": []any{"[[Y.md|second]]", "[[W]]"},
	}
	got := Build(fm, []string{"a", "b"}, Options{DedupeAcrossFields: true})
	assert.Equal(t, map[string][]string{
		"a": {"[[Y|first]]"},
		"b": {"[[W]]"},
	}, raws(got))
}

func TestBuild_NoDedupeKeepsDuplicates(t *testing.T) {
	fm := map[string]any{
		"a": []any{"[[Y]]"},
		"b": []any{"[[Y]]"},
	}
	got := Build(fm, []string{"a", "b"}, Options{})
	assert.Equal(t, map[string][]string{"a": {"[[Y]]"}, "b": {"[[Y]]"}}, raws(got))
}

func TestBuild_MaxItemsPerField(t *testing.T) {
	fm := map[string]any{"a": []any{"p", "q", "r"}}
	got := Build(fm, []string{"a"}, Options{MaxItemsPerField: 1})
	assert.Equal(t, map[string][]string{"a": {"p"}}, raws(got))
}

func TestBuild_TruncateBeforeDedupe(t *testing.T) {
	fm := map[string]any{
		"a": []any{"[[X]]", "[[Y]]"},
		"b": []any{"[[Y]]", "[[Z]]"},
	}
	got := Build(fm, []string{"a", "b"}, Options{MaxItemsPerField: 1, DedupeAcrossFields: true})
	assert.Equal(t, map[string][]string{"a": {"[[X]]"}, "b": {"[[Y]]"}}, raws(got))
}

func TestBuild_DropsEmptyAndMalformed(t *testing.T) {
	fm := map[string]any{
		"a": map[string]any{"nested": true},
		"b": "",
		"c": "one; two",
	}
	got := Build(fm, []string{"a", "b", "c", "missing"}, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Field)
	assert.Equal(t, []string{"one", "two"}, got[0].Raw())
}

func TestBuild_DefaultField(t *testing.T) {
	fm := map[string]any{DefaultField: []any{"[[A]]"}, "other": []any{"[[B]]"}}
	got := Build(fm, nil, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, DefaultField, got[0].Field)
}

func TestBuild_NilFrontmatter(t *testing.T) {
	assert.Empty(t, Build(nil, []string{"a"}, Options{DedupeAcrossFields: true}))
}
