// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalid         = errors.New("invalid argument")
	ErrSessionOpen     = errors.New("an editing session is already open for this document")
	ErrSessionNotFound = errors.New("editing session not found")
)
