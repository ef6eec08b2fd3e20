package localfs

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestNewStoreRejectsRelativeRoot(t *testing.T) {
	if _, err := NewStore("backups"); err == nil {
		t.Fatal("expected error for relative root")
	}
}

func TestNewStoreCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "backups")
	store, err := NewStore(root)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	fi, err := os.Stat(store.Root())
	if err != nil || !fi.IsDir() {
		t.Fatalf("expected root directory to exist: %v", err)
	}
}

func TestPathRejectsEscapes(t *testing.T) {
	store := newTestStore(t)

	bad := []string{
		"",
		"../escape.dump",
		"sub/file.dump",
		"/etc/passwd",
		"..",
	}
	for _, name := range bad {
		if _, err := store.Path(name); err == nil {
			t.Errorf("Path(%q) accepted an unsafe name", name)
		}
	}

	if _, err := store.Path("db-20251101-120000.dump"); err != nil {
		t.Errorf("Path rejected a plain file name: %v", err)
	}
}

func TestCreateOpenSize(t *testing.T) {
	store := newTestStore(t)

	f, err := store.Create("artifact.dump")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.Write([]byte("payload")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	f.Close()

	size, err := store.Size("artifact.dump")
	if err != nil || size != 7 {
		t.Fatalf("Size = %d, %v; want 7, nil", size, err)
	}
	if !store.Exists("artifact.dump") {
		t.Error("Exists reported a written artifact as missing")
	}

	r, err := store.Open("artifact.dump")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	r.Close()
}

func TestRemoveIdempotent(t *testing.T) {
	store := newTestStore(t)

	f, err := store.Create("artifact.dump")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	f.Close()

	if err := store.Remove("artifact.dump"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if store.Exists("artifact.dump") {
		t.Fatal("artifact still present after Remove")
	}
	if err := store.Remove("artifact.dump"); err != nil {
		t.Fatalf("Remove of missing artifact should succeed: %v", err)
	}
}

func TestListNamesSorted(t *testing.T) {
	store := newTestStore(t)

	for _, name := range []string{"b.dump", "a.dump", "c.dump.enc"} {
		f, err := store.Create(name)
		if err != nil {
			t.Fatalf("Create(%s) failed: %v", name, err)
		}
		f.Close()
	}
	if err := os.Mkdir(filepath.Join(store.Root(), "subdir"), 0o750); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	names, err := store.ListNames()
	if err != nil {
		t.Fatalf("ListNames failed: %v", err)
	}
	want := []string{"a.dump", "b.dump", "c.dump.enc"}
	if len(names) != len(want) {
		t.Fatalf("ListNames = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("ListNames = %v, want %v", names, want)
		}
	}
}
