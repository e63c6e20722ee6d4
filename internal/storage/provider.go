// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/refdeck/internal/models"

// Provider is the interface for vault file operations. All paths are
// relative to the vault root and use forward slashes.
type Provider interface {
	// List returns metadata for every document under dir.
	List(dir string) ([]models.DocumentMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Exists reports whether a file exists at path.
	Exists(path string) bool
}

var _ Provider = (*FS)(nil)
