package localfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store manages backup artifacts under a single root directory. Artifact
// names are plain file names; anything that would resolve outside the root
// is rejected.
type Store struct {
	root string
}

// NewStore opens the artifact directory, creating it when missing. The root
// must be an absolute path.
func NewStore(root string) (*Store, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("backup directory must be absolute: %s", root)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Store{root: filepath.Clean(root)}, nil
}

// Root returns the absolute artifact directory.
func (s *Store) Root() string { return s.root }

// Path resolves an artifact name to its absolute path, refusing names that
// contain separators or would escape the root.
func (s *Store) Path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("artifact name is empty")
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("artifact name must not contain path separators: %s", name)
	}
	p := filepath.Join(s.root, name)
	if !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact path escapes backup directory: %s", name)
	}
	return p, nil
}

// Create opens a new artifact file for writing, truncating any previous
// file with the same name.
func (s *Store) Create(name string) (*os.File, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact file: %w", err)
	}
	return f, nil
}

// Open opens an existing artifact for reading.
func (s *Store) Open(name string) (*os.File, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact file: %w", err)
	}
	return f, nil
}

// Size returns the size in bytes of a stored artifact.
func (s *Store) Size(name string) (int64, error) {
	p, err := s.Path(name)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return 0, fmt.Errorf("failed to stat artifact file: %w", err)
	}
	return fi.Size(), nil
}

// Exists reports whether an artifact is present on disk.
func (s *Store) Exists(name string) bool {
	p, err := s.Path(name)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Remove deletes an artifact. Removing a missing artifact is not an error.
func (s *Store) Remove(name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact file: %w", err)
	}
	return nil
}

// ListNames returns the names of all regular files in the store, sorted.
func (s *Store) ListNames() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
