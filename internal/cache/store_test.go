package cache

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestStoreCreateCommitAndGet(t *testing.T) {
	store := newTestStore(t, Directive{})
	rel := "http/example.org/hapi/data/X/2020/01/20200101.csv"

	pending, err := store.Create(context.Background(), rel)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if _, err := pending.Write([]byte("2020-01-01T00:00Z,1\n")); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if _, err := store.Stat(context.Background(), rel); !errors.Is(err, ErrNotFound) {
		t.Fatalf("uncommitted file must not be visible, got %v", err)
	}
	if err := pending.Commit(); err != nil {
		t.Fatalf("commit error: %v", err)
	}

	result, err := store.Get(context.Background(), rel)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()
	body, _ := io.ReadAll(result.Reader)
	if string(body) != "2020-01-01T00:00Z,1\n" {
		t.Fatalf("cached payload mismatch: %q", body)
	}
	if result.Entry.SizeBytes != int64(len(body)) || !result.Entry.Fresh {
		t.Fatalf("unexpected entry: %+v", result.Entry)
	}
}

func TestStoreAbortLeavesNothing(t *testing.T) {
	store := newTestStore(t, Directive{})
	rel := "http/example.org/hapi/catalog.json"

	pending, err := store.Create(context.Background(), rel)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	pending.Write([]byte("{"))
	if err := pending.Abort(); err != nil {
		t.Fatalf("abort error: %v", err)
	}
	if err := pending.Abort(); err != nil {
		t.Fatalf("second abort should be a no-op: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(store.Root(), "http", "example.org", "hapi"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("abort 后目录应为空，得到 %d 个文件", len(entries))
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t, Directive{})
	if _, err := store.Get(context.Background(), "missing.csv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t, Directive{})
	if err := os.MkdirAll(filepath.Join(store.Root(), "http", "dir"), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if _, err := store.Stat(context.Background(), "http/dir"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("directory should be treated as missing, got %v", err)
	}
}

func TestStoreRejectsEscapingPaths(t *testing.T) {
	store := newTestStore(t, Directive{})
	fs := store.(*fileStore)
	got, err := fs.entryPath("../../etc/passwd")
	if err != nil {
		t.Fatalf("cleaned path should resolve: %v", err)
	}
	if got != filepath.Join(store.Root(), "etc", "passwd") {
		t.Fatalf("path escaped the root: %s", got)
	}
	if _, err := fs.entryPath("/"); err == nil {
		t.Fatalf("empty path should be rejected")
	}
}

func TestStoreStatHonoursStaleAfter(t *testing.T) {
	store := newTestStore(t, Directive{StaleAfter: time.Hour})
	rel := "old.csv"
	writeFile(t, store, rel, "x")
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(store.Root(), rel), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	entry, err := store.Stat(context.Background(), rel)
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if entry.Fresh {
		t.Fatalf("two hour old file should be stale with a one hour threshold")
	}
}

func TestStoreLockSerializesSamePath(t *testing.T) {
	store := newTestStore(t, Directive{})
	unlock, err := store.Lock("a/b.csv")
	if err != nil {
		t.Fatalf("lock error: %v", err)
	}

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		release, err := store.Lock("a/b.csv")
		if err != nil {
			return
		}
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatalf("second lock acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	wg.Wait()

	fs := store.(*fileStore)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.locks) != 0 {
		t.Fatalf("lock table should be empty, got %d", len(fs.locks))
	}
}

func newTestStore(t *testing.T, directive Directive) Store {
	t.Helper()
	directive.RootDir = t.TempDir()
	store, err := NewStore(directive)
	if err != nil {
		t.Fatalf("store init error: %v", err)
	}
	return store
}

func writeFile(t *testing.T, store Store, rel, body string) {
	t.Helper()
	pending, err := store.Create(context.Background(), rel)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if _, err := pending.Write([]byte(body)); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if err := pending.Commit(); err != nil {
		t.Fatalf("commit error: %v", err)
	}
}
