// Package models defines the domain types for refdeck.
package models

import "time"

// Document is a parsed Markdown file in the vault. ID is the vault-relative
// path including the .md extension.
type Document struct {
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Body      string         `json:"-"`
	Checksum  string         `json:"checksum"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// DocumentMetadata is a lightweight representation returned by list operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FieldValue is one entry of a Patch: either a new list for the field or a
// request to remove the field entirely.
type FieldValue struct {
	Entries []string
	Delete  bool
}

// List returns a FieldValue that stores entries.
func List(entries []string) FieldValue {
	return FieldValue{Entries: entries}
}

// Remove returns a FieldValue that deletes the field.
func Remove() FieldValue {
	return FieldValue{Delete: true}
}

// Patch maps field names to their new value.
type Patch map[string]FieldValue

// ReferenceRow is one reference entry declared in a document field.
type ReferenceRow struct {
	Source   string `json:"source"`
	Field    string `json:"field"`
	Position int    `json:"position"`
	Entry    string `json:"entry"`
	Identity string `json:"identity"`
	Kind     string `json:"kind"`
}
