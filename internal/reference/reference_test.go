package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse_ListPreservesOrder(t *testing.T) {
	got := Parse([]any{"[[B]]", "[[A]]", 3, true, nil, "https://x.io"})
	assert.Equal(t, []string{"[[B]]", "[[A]]", "3", "true", "https://x.io"}, got)
}

func TestParse_DelimitedString(t *testing.T) {
	got := Parse(" [[A]] , b;\n c ;; ,\n")
	assert.Equal(t, []string{"[[A]]", "b", "c"}, got)
}

func TestParse_OtherShapesAreEmpty(t *testing.T) {
	for _, raw := range []any{nil, 42, map[string]any{"a": 1}, 1.5} {
		got := Parse(raw)
		require.NotNil(t, got)
		assert.Empty(t, got, "raw=%v", raw)
	}
}

func TestParse_UnquotedWikilinkInYAML(t *testing.T) {
	var fm map[string]any
	require.NoError(t, yaml.Unmarshal([]byte("related:\n  - [[Alpha]]\n  - \"[[Beta]]\"\n"), &fm))
	assert.Equal(t, []string{"[[Alpha]]", "[[Beta]]"}, Parse(fm["related"]))
}

func TestParse_RoundTripIsStable(t *testing.T) {
	inputs := []any{
		[]any{"[[X]]", "b", "[[Y|why]]"},
		"a, b; c\nd",
		"",
		nil,
	}
	for _, in := range inputs {
		once := Parse(in)
		twice := Parse(Serialize(once))
		assert.Equal(t, once, twice, "input=%v", in)
	}
}

func TestClassify_Variants(t *testing.T) {
	cases := []struct {
		entry string
		kind  Kind
		id    Identity
	}{
		{"[[Note]]", KindNote, "wikilink:Note"},
		{"[[folder/Note.md]]", KindNote, "wikilink:folder/Note"},
		{"[[Note#Heading]]", KindNote, "wikilink:Note#Heading"},
		{"[[Note.MD#^abc123|see]]", KindNote, "wikilink:Note#^abc123"},
		{"https://example.com/a?b=1", KindURL, "url:https://example.com/a?b=1"},
		{"HTTP://example.com", KindURL, "url:HTTP://example.com"},
		{"plain words", KindText, "txt:plain words"},
		{"[[a]] and [[b]]", KindText, "txt:[[a]] and [[b]]"},
		{"https://", KindText, "txt:https://"},
	}
	for _, tc := range cases {
		t.Run(tc.entry, func(t *testing.T) {
			ref := Classify(tc.entry)
			assert.Equal(t, tc.kind, ref.Kind())
			assert.Equal(t, tc.id, ref.Identity())
			assert.Equal(t, tc.entry, ref.Raw())
		})
	}
}

func TestIdentify_AliasInvariant(t *testing.T) {
	base := Identify("[[Project/Plan#Goals]]")
	for _, e := range []string{
		"[[Project/Plan#Goals|the plan]]",
		"[[Project/Plan#Goals|]]",
		"[[Project/Plan.md#Goals|x]]",
	} {
		assert.Equal(t, base, Identify(e), e)
	}
}

func TestIdentify_ExtensionStrippedFromTargetOnly(t *testing.T) {
	assert.Equal(t, Identity("wikilink:Note#H"), Identify("[[Note.md#H]]"))
	assert.Equal(t, Identify("[[Note#H]]"), Identify("[[Note.md#H]]"))
	// A subpath that merely ends in .md is left alone.
	assert.Equal(t, Identity("wikilink:Note#setup.md"), Identify("[[Note#setup.md]]"))
}

func TestIdentify_DistinctTargets(t *testing.T) {
	entries := []string{
		"[[A]]", "[[B]]", "[[A#h]]", "https://a.io", "https://a.io/", "a",
	}
	seen := make(map[Identity]string)
	for _, e := range entries {
		id := Identify(e)
		if prev, dup := seen[id]; dup {
			t.Fatalf("%q and %q share identity %q", prev, e, id)
		}
		seen[id] = e
	}
}

func TestNoteReference_Display(t *testing.T) {
	assert.Equal(t, "alias", Classify("[[T|alias]]").Display())
	assert.Equal(t, "T#H", Classify("[[T#H]]").Display())
	assert.Equal(t, "T", Classify("[[T.md]]").Display())
}

func TestCollapseKey_FieldQualified(t *testing.T) {
	id := Identify("[[Y]]")
	assert.Equal(t, "field:a|wikilink:Y", CollapseKey("a", id))
	assert.NotEqual(t, CollapseKey("a", id), CollapseKey("b", id))
}

func TestNoteLink(t *testing.T) {
	assert.Equal(t, "[[notes/x]]", NoteLink("notes/x", ""))
	assert.Equal(t, "[[x#Intro]]", NoteLink("x", "Intro"))
	assert.Equal(t, "[[x#Intro]]", NoteLink("x", "#Intro"))
	assert.Equal(t, "[[x#^blk1]]", NoteLink("x", "^blk1"))
	assert.Equal(t, "[[x]]", NoteLink("x", "   "))
}

func TestURLEntry(t *testing.T) {
	got, ok := URLEntry("  https://go.dev/doc  ")
	require.True(t, ok)
	assert.Equal(t, "https://go.dev/doc", got)

	_, ok = URLEntry("   ")
	assert.False(t, ok)

	got, ok = URLEntry(" mailto:x ")
	require.True(t, ok, "no scheme check here")
	assert.Equal(t, "mailto:x", got)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://x.io"))
	assert.True(t, IsURL("HTTP://x.io"))
	assert.False(t, IsURL("https://"))
	assert.False(t, IsURL("mailto:x"))
	assert.False(t, IsURL("ftp://x.io"))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal([]string{"a", "b"}, []string{"a", "b"}))
	assert.False(t, Equal([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, Equal([]string{"a"}, []string{"a", "b"}))
	assert.True(t, Equal(nil, []string{}))
}
