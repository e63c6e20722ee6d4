package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/refdeck/internal/section"
)

func TestRender_FieldQualifiedKeysAcrossSections(t *testing.T) {
	s := NewSurface(Options{Fields: []string{"a", "b"}})
	fm := map[string]any{"a": []any{"[[Y]]"}, "b": []any{"[[Y|alias]]"}}

	p := s.Render("doc.md", fm)
	require.Len(t, p.Sections, 2)
	ka := p.Sections[0].Entries[0].CollapseKey
	kb := p.Sections[1].Entries[0].CollapseKey
	assert.Equal(t, "field:a|wikilink:Y", ka)
	assert.Equal(t, "field:b|wikilink:Y", kb)

	assert.True(t, s.Toggle("doc.md", ka))
	p = s.Render("doc.md", fm)
	assert.True(t, p.Sections[0].Entries[0].Collapsed)
	assert.False(t, p.Sections[1].Entries[0].Collapsed, "other occurrence stays expanded")
}

func TestRender_SingleFieldUsesBareIdentity(t *testing.T) {
	s := NewSurface(Options{Fields: []string{"a"}})
	p := s.Render("doc.md", map[string]any{"a": []any{"[[X#h|alias]]", "https://x.io"}})
	require.Len(t, p.Sections, 1)
	e := p.Sections[0].Entries[0]
	assert.Equal(t, "wikilink:X#h", e.CollapseKey)
	assert.Equal(t, "alias", e.Display)
	assert.Equal(t, "X", e.Target)
	assert.Equal(t, "h", e.Subpath)
	assert.Equal(t, "url:https://x.io", p.Sections[0].Entries[1].CollapseKey)
}

func TestRender_KeysStableWhenSecondSectionAppears(t *testing.T) {
	s := NewSurface(Options{Fields: []string{"a", "b"}})
	fm := map[string]any{"a": []any{"[[X]]"}}

	p := s.Render("doc.md", fm)
	require.Len(t, p.Sections, 1)
	key := p.Sections[0].Entries[0].CollapseKey
	assert.Equal(t, "field:a|wikilink:X", key)
	s.Toggle("doc.md", key)

	fm["b"] = []any{"[[Z]]"}
	p, changed := s.Refresh("doc.md", fm)
	require.True(t, changed)
	require.Len(t, p.Sections, 2)
	assert.Equal(t, key, p.Sections[0].Entries[0].CollapseKey)
	assert.True(t, p.Sections[0].Entries[0].Collapsed)

	delete(fm, "b")
	p, _ = s.Refresh("doc.md", fm)
	assert.True(t, p.Sections[0].Entries[0].Collapsed, "still collapsed after the section empties")
}

func TestCollapse_SurvivesReorderAndRefresh(t *testing.T) {
	s := NewSurface(Options{Fields: []string{"a"}})
	fm := map[string]any{"a": []any{"[[X]]", "[[Y]]"}}
	s.Render("doc.md", fm)
	s.SetCollapsed("doc.md", "wikilink:Y", true)

	fm["a"] = []any{"[[Y]]", "[[X]]"}
	p, changed := s.Refresh("doc.md", fm)
	require.True(t, changed)
	assert.True(t, p.Sections[0].Entries[0].Collapsed)
	assert.False(t, p.Sections[0].Entries[1].Collapsed)
}

func TestRefresh_SkipsUnrelatedEdits(t *testing.T) {
	s := NewSurface(Options{Fields: []string{"a"}, Section: section.Options{MaxItemsPerField: 1}})
	fm := map[string]any{"a": []any{"1", "2"}, "title": "x"}
	s.Render("doc.md", fm)

	fm["title"] = "y"
	_, changed := s.Refresh("doc.md", fm)
	assert.False(t, changed)

	// Changes beyond the display cap still count.
	fm["a"] = []any{"1", "3"}
	p, changed := s.Refresh("doc.md", fm)
	assert.True(t, changed)
	assert.Len(t, p.Sections[0].Entries, 1)
}

func TestToggleAndClose(t *testing.T) {
	s := NewSurface(Options{})
	assert.True(t, s.Toggle("d", "k"))
	assert.True(t, s.IsCollapsed("d", "k"))
	assert.False(t, s.Toggle("d", "k"))
	assert.False(t, s.IsCollapsed("d", "k"))

	s.SetCollapsed("d", "k", true)
	s.Render("d", nil)
	s.Close()
	assert.False(t, s.IsCollapsed("d", "k"))
	_, changed := s.Refresh("d", nil)
	assert.True(t, changed, "tracker is reset on close")
}
