package index

import (
	"log/slog"

	"github.com/starford/refdeck/internal/checksum"
	"github.com/starford/refdeck/internal/models"
	"github.com/starford/refdeck/internal/parser"
	"github.com/starford/refdeck/internal/reference"
	"github.com/starford/refdeck/internal/section"
	"github.com/starford/refdeck/internal/storage"
)

// metaFields holds the digest of the field list the refs rows were built with.
const metaFields = "reference_fields"

// Sync walks the vault and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
//   - every file is reindexed when the configured fields differ from the
//     ones the index was built with
//
// fields are the reference fields whose entries are indexed.
func Sync(db *DB, store storage.Provider, fields []string, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	digest, err := checksum.SumJSON(section.Fields(fields))
	if err != nil {
		return err
	}
	stored, err := db.Meta(metaFields)
	if err != nil {
		return err
	}
	force := stored != digest
	if force && len(checksums) > 0 {
		logger.Info("sync: reference fields changed, reindexing all files", slog.Any("fields", section.Fields(fields)))
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if !force && checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, fields, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return db.SetMeta(metaFields, digest)
}

// IndexFile parses data and upserts the note and its reference rows.
func IndexFile(db ReferenceIndex, fields []string, path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	row := NoteRow{
		Path:     path,
		Title:    res.Title,
		Checksum: checksum.Sum(data),
		Tags:     res.Tags,
	}
	return db.UpsertNote(row, res.Body, ExtractReferences(path, res.Frontmatter, fields))
}

// ExtractReferences lists every entry of the configured fields of fm. Entries
// are neither truncated nor deduplicated.
func ExtractReferences(path string, fm map[string]any, fields []string) []models.ReferenceRow {
	var out []models.ReferenceRow
	for _, field := range section.Fields(fields) {
		for i, entry := range reference.Parse(fm[field]) {
			ref := reference.Classify(entry)
			out = append(out, models.ReferenceRow{
				Source:   path,
				Field:    field,
				Position: i,
				Entry:    entry,
				Identity: string(ref.Identity()),
				Kind:     string(ref.Kind()),
			})
		}
	}
	return out
}
