package mcpserver

// ReferenceFormatContract describes how reference lists are stored in note
// frontmatter, for LLM consumers that read or edit them.
const ReferenceFormatContract = `# Reference List Format

References live in YAML frontmatter fields (by default ` + "`" + `related` + "`" + `).
Each field holds an ordered list of entries.

## Structure

` + "```" + `markdown
---
title: Project kickoff
related:
  - "[[design-doc]]"                 # note reference
  - "[[roadmap#Q3|the Q3 plan]]"     # heading subpath and alias
  - "[[meeting-notes#^a1b2c3]]"      # block subpath
  - https://example.com/spec         # URL
  - Ask finance about budget         # plain text
up: "[[projects]]"
---
` + "```" + `

## Entry kinds

1. **Note**: ` + "`" + `[[target]]` + "`" + `, ` + "`" + `[[target#subpath]]` + "`" + `, ` + "`" + `[[target|alias]]` + "`" + `. The target is the
   file name without ` + "`" + `.md` + "`" + `; use the shortest unambiguous path (` + "`" + `folder/note` + "`" + `)
   when two files share a name. The alias only changes how the entry is shown.
2. **URL**: starts with ` + "`" + `http://` + "`" + ` or ` + "`" + `https://` + "`" + `.
3. **Text**: anything else, shown as-is.

## Rules

1. **Quote note entries.** ` + "`" + `[[...]]` + "`" + ` must be a quoted YAML string, otherwise YAML reads it
   as a nested list.
2. **A field may be a list or a single string.** A string is split on newlines, commas and
   semicolons; prefer lists.
3. **Order matters.** Entries are shown in list order; moving entries is an edit.
4. **Empty fields are removed** rather than stored as ` + "`" + `[]` + "`" + `.
5. **Two entries are the same reference** when they point at the same target and subpath,
   whatever their alias.
6. **Edit through the tools** (` + "`" + `add_reference` + "`" + `, ` + "`" + `move_reference` + "`" + `, ` + "`" + `remove_reference` + "`" + `).
   They keep the rest of the frontmatter, its comments and the body untouched, and fail
   while an interactive editing session holds the document.
`
