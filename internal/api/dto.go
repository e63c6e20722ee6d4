package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/refdeck/internal/docstore"
	"github.com/starford/refdeck/internal/index"
	"github.com/starford/refdeck/internal/refservice"
	"github.com/starford/refdeck/internal/view"
)

// Panel is the rendered reference panel of a document.
type Panel = view.Panel

// SessionView is the state of an editing session.
type SessionView = refservice.SessionView

// CommitView is the outcome of a commit.
type CommitView = refservice.CommitView

// Referrer is one reference pointing at a queried entry.
type Referrer = refservice.Referrer

// DocumentMatch is a fuzzy document search hit.
type DocumentMatch = docstore.Match

// TextMatch is a full-text search hit.
type TextMatch = index.SearchResult

// DocumentSearchResponse wraps document search results.
type DocumentSearchResponse struct {
	Documents []DocumentMatch `json:"documents" validate:"required"`
}

// TextSearchResponse wraps full-text search results.
type TextSearchResponse struct {
	Results []TextMatch `json:"results" validate:"required"`
}

// ReferrersResponse wraps referrer listings.
type ReferrersResponse struct {
	Entry     string     `json:"entry" example:"[[Note]]" validate:"required"`
	Referrers []Referrer `json:"referrers" validate:"required"`
}

// CollapseRequest toggles one entry of a panel.
type CollapseRequest struct {
	Path string `json:"path" example:"notes/hello.md" validate:"required"`
	Key  string `json:"key" example:"wikilink:Other" validate:"required"`
}

// Validate validates the request.
func (r CollapseRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Key, validation.Required),
	)
}

// CollapseResponse reports the new collapsed state.
type CollapseResponse struct {
	Key       string `json:"key" validate:"required"`
	Collapsed bool   `json:"collapsed"`
}

// OpenSessionRequest starts an editing session.
type OpenSessionRequest struct {
	Path  string `json:"path" example:"notes/hello.md" validate:"required"`
	Field string `json:"field,omitempty" example:"related"`
}

// Validate validates the request.
func (r OpenSessionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// FieldRequest switches the active field.
type FieldRequest struct {
	Field string `json:"field" example:"related" validate:"required"`
}

// Validate validates the request.
func (r FieldRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Field, validation.Required),
	)
}

// AppendRequest appends a raw entry.
type AppendRequest struct {
	Entry string `json:"entry" example:"[[Other]]" validate:"required"`
}

// Validate validates the request.
func (r AppendRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Entry, validation.Required),
	)
}

// AppendNoteRequest appends a link to a vault document.
type AppendNoteRequest struct {
	Target  string `json:"target" example:"notes/other.md" validate:"required"`
	Subpath string `json:"subpath,omitempty" example:"Heading"`
}

// Validate validates the request.
func (r AppendNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Target, validation.Required),
	)
}

// AppendURLRequest appends a URL. Input that is empty or not an http(s) URL
// leaves the draft unchanged and reports added=false.
type AppendURLRequest struct {
	URL string `json:"url" example:"https://example.com"`
}

// AppendURLResponse reports whether the URL was added.
type AppendURLResponse struct {
	Added   bool        `json:"added"`
	Session SessionView `json:"session"`
}

// ReorderRequest sets the displayed order of the active field.
type ReorderRequest struct {
	Order []string `json:"order" validate:"required"`
}

// Validate validates the request.
func (r ReorderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Order, validation.NotNil),
	)
}

// MoveRequest moves one entry of the active field.
type MoveRequest struct {
	From int `json:"from" example:"2"`
	To   int `json:"to" example:"0"`
}

// Validate validates the request.
func (r MoveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.From, validation.Min(0)),
		validation.Field(&r.To, validation.Min(0)),
	)
}

// RemoveRequest removes one entry of the active field.
type RemoveRequest struct {
	Position int `json:"position" example:"1"`
}

// Validate validates the request.
func (r RemoveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Position, validation.Min(0)),
	)
}
