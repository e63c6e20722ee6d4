package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/refdeck/internal/storage"
)

var testFields = []string{"related"}

// watcherTestEnv sets up a vault dir, storage, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	dbFile, err := os.CreateTemp("", "refdeck-watcher-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	db, err := Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return vaultDir, store, db
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, testFields, vaultDir, logger, func(kind, path string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(vaultDir, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("new.md")
		return cs != ""
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:new.md" {
				return true
			}
		}
		return false
	}, "expected created:new.md callback")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, testFields, vaultDir, logger, nil)

	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(vaultDir, "subdir")
	_ = os.MkdirAll(subDir, 0o755)

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return true
	}, "")

	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("subdir/deep.md")
		return cs != ""
	}, "file in new subdir not indexed by watcher")

	// Document ids use forward slashes regardless of platform.
	cs, _ := db.GetChecksum("subdir/deep.md")
	if cs == "" {
		t.Error("expected slash-separated id subdir/deep.md")
	}
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	_ = os.WriteFile(filepath.Join(vaultDir, "del.md"), []byte("# Delete Me"), 0o644)
	Sync(db, store, testFields, logger)

	cs, _ := db.GetChecksum("del.md")
	if cs == "" {
		t.Fatal("precondition: file should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, testFields, vaultDir, logger, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(vaultDir, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("del.md")
		return cs == ""
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	_ = os.WriteFile(filepath.Join(vaultDir, "old.md"), []byte("# Rename"), 0o644)
	Sync(db, store, testFields, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, testFields, vaultDir, logger, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(vaultDir, "old.md"), filepath.Join(vaultDir, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("old.md")
		newCS, _ := db.GetChecksum("renamed.md")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}

func TestWatcher_ReferenceEditReindexed(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	path := filepath.Join(vaultDir, "doc.md")
	_ = os.WriteFile(path, []byte("---\nrelated: \"[[A]]\"\n---\n"), 0o644)
	if err := Sync(db, store, testFields, logger); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updated := make(chan string, 8)
	go Watch(ctx, db, store, testFields, vaultDir, logger, func(kind, p string) {
		if kind == EventUpdated {
			updated <- p
		}
	})
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(path, []byte("---\nrelated: \"[[B]]\"\n---\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		rr, _ := db.Referrers("wikilink:B")
		return len(rr) == 1
	}, "edited reference not reindexed")

	if rr, _ := db.Referrers("wikilink:A"); len(rr) != 0 {
		t.Errorf("stale reference still indexed: %+v", rr)
	}
}

func TestVaultWatcher_UnchangedWriteIgnored(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	var events []string
	vw := &vaultWatcher{db: db, store: store, fields: testFields, root: vaultDir, logger: logger,
		cb: func(kind, path string) { events = append(events, kind+":"+path) }}

	abs := filepath.Join(vaultDir, "n.md")
	if err := os.WriteFile(abs, []byte("---\nrelated: \"[[A]]\"\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	vw.handle(fsnotify.Event{Name: abs, Op: fsnotify.Create})
	vw.handle(fsnotify.Event{Name: abs, Op: fsnotify.Write})
	if len(events) != 1 || events[0] != "created:n.md" {
		t.Fatalf("events = %v, want only created:n.md", events)
	}

	if err := os.WriteFile(abs, []byte("---\nrelated: \"[[B]]\"\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	vw.handle(fsnotify.Event{Name: abs, Op: fsnotify.Write})
	if len(events) != 2 || events[1] != "updated:n.md" {
		t.Fatalf("events = %v, want updated:n.md after a real edit", events)
	}
	if rows, _ := db.References("n.md"); len(rows) != 1 || rows[0].Entry != "[[B]]" {
		t.Errorf("references = %+v", rows)
	}

	if due := vw.handle(fsnotify.Event{Name: abs, Op: fsnotify.Rename}); !due {
		t.Error("rename should schedule a reconciliation")
	}
	if len(events) != 3 || events[2] != "deleted:n.md" {
		t.Errorf("events = %v", events)
	}
}
