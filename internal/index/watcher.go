package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/refdeck/internal/checksum"
	"github.com/starford/refdeck/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change with one of
// the Event* kinds and the vault-relative path.
type EventCallback func(kind string, path string)

// Watch follows the vault with fsnotify and keeps the index current until
// ctx is cancelled. cb, if non-nil, is called after each index mutation.
//
// Writes that leave a document's bytes unchanged are ignored. New
// directories are watched and indexed as they appear. A rename removes the
// old path at once and schedules a reconciliation against the disk.
func Watch(ctx context.Context, db *DB, store storage.Provider, fields []string, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	vw := &vaultWatcher{db: db, store: store, fields: fields, root: vaultRoot, logger: logger, cb: cb}
	logger.Info("watcher: started", slog.String("root", vaultRoot))

	var reconcile *time.Timer
	var reconcileC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if reconcile != nil {
				reconcile.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileC:
			reconcile, reconcileC = nil, nil
			vw.reconcile()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 && isDir(ev.Name) {
				if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
					logger.Warn("watcher: add new dir failed",
						slog.String("path", ev.Name),
						slog.String("error", addErr.Error()))
				}
				vw.indexDir(ev.Name)
				continue
			}
			if vw.handle(ev) && reconcileC == nil {
				reconcile = time.NewTimer(reconcileDelay)
				reconcileC = reconcile.C
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcileDelay lets the Create half of a rename land before reconciling.
const reconcileDelay = 200 * time.Millisecond

type vaultWatcher struct {
	db     *DB
	store  storage.Provider
	fields []string
	root   string
	logger *slog.Logger
	cb     EventCallback
}

// handle applies one file event and reports whether a reconciliation is due.
func (vw *vaultWatcher) handle(ev fsnotify.Event) bool {
	if !storage.IsDocument(ev.Name) {
		return false
	}
	rel, err := vaultRel(vw.root, ev.Name)
	if err != nil {
		return false
	}
	switch {
	case ev.Op&fsnotify.Create != 0:
		vw.index(rel, EventCreated, false)
	case ev.Op&fsnotify.Write != 0:
		vw.index(rel, EventUpdated, true)
	case ev.Op&fsnotify.Remove != 0:
		vw.remove(rel)
	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the old path only; the new one arrives as a Create.
		vw.remove(rel)
		return true
	}
	return false
}

// index reads rel and stores it. With skipSame set, content whose checksum
// matches the stored one is left alone and not announced.
func (vw *vaultWatcher) index(rel, kind string, skipSame bool) bool {
	data, err := vw.store.Read(rel)
	if err != nil {
		vw.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return false
	}
	if skipSame {
		if stored, _ := vw.db.GetChecksum(rel); stored == checksum.Sum(data) {
			return false
		}
	}
	if err := IndexFile(vw.db, vw.fields, rel, data); err != nil {
		vw.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return false
	}
	vw.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
	vw.notify(kind, rel)
	return true
}

func (vw *vaultWatcher) remove(rel string) {
	if err := vw.db.DeleteNote(rel); err != nil {
		vw.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	vw.logger.Debug("watcher: deleted", slog.String("path", rel))
	vw.notify(EventDeleted, rel)
}

func (vw *vaultWatcher) notify(kind, rel string) {
	if vw.cb != nil {
		vw.cb(kind, rel)
	}
}

// reconcile drops index rows whose file is gone and indexes files whose
// checksum differs from the index, as after a rename out of or into the
// watched tree.
func (vw *vaultWatcher) reconcile() {
	indexed, err := vw.db.AllChecksums()
	if err != nil {
		vw.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := vw.store.List("")
	if err != nil {
		vw.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}
	onDisk := make(map[string]string, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = m.Checksum
	}

	for p := range indexed {
		if _, ok := onDisk[p]; !ok {
			vw.remove(p)
		}
	}
	for p, sum := range onDisk {
		if indexed[p] != sum {
			vw.index(p, EventCreated, false)
		}
	}
}

// indexDir indexes the documents already present in a newly created
// directory.
func (vw *vaultWatcher) indexDir(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsDocument(path) {
			return nil
		}
		if rel, relErr := vaultRel(vw.root, path); relErr == nil {
			vw.index(rel, EventCreated, false)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// vaultRel returns abs relative to root with forward slashes, the form used
// for document ids.
func vaultRel(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
