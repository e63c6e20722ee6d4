package index

import "github.com/starford/refdeck/internal/models"

// ReferenceIndex is what consumers need from the index. Depend on it rather
// than on *DB so tests can substitute a fake.
type ReferenceIndex interface {
	UpsertNote(n NoteRow, body string, refs []models.ReferenceRow) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	References(source string) ([]models.ReferenceRow, error)
	Referrers(identity string) ([]models.ReferenceRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

var _ ReferenceIndex = (*DB)(nil)
