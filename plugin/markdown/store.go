package markdown

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// MetadataStore is the read-modify-write capability over note metadata.
type MetadataStore interface {
	// Read returns the front matter and body of the note at path.
	// A missing note is reported with an error satisfying os.IsNotExist.
	Read(path string) (*FrontMatter, []byte, error)
	// Write replaces the note at path with the given front matter and body.
	Write(path string, fm *FrontMatter, body []byte) error
	// Update reads the note, applies fn to its front matter and writes it back.
	// No other Write or Update on the store runs in between.
	Update(path string, fn func(fm *FrontMatter) error) error
}

// FileStore keeps notes as files on the local disk.
type FileStore struct {
	// mu is held across the whole of Write and Update. Read takes no lock,
	// since Write replaces files by rename.
	mu sync.Mutex
}

// NewFileStore creates a FileStore.
func NewFileStore() *FileStore {
	return &FileStore{}
}

func (s *FileStore) Read(path string) (*FrontMatter, []byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	fm, body, err := Parse(content)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to parse note %s", path)
	}
	return fm, body, nil
}

// Write renders the note to a temp file in the same directory and renames it over path.
func (s *FileStore) Write(path string, fm *FrontMatter, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(path, fm, body)
}

func (s *FileStore) Update(path string, fn func(fm *FrontMatter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fm, body, err := s.Read(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	if err := fn(fm); err != nil {
		return err
	}
	return s.write(path, fm, body)
}

func (s *FileStore) write(path string, fm *FrontMatter, body []byte) error {
	content, err := Render(fm, body)
	if err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrapf(err, "failed to write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrapf(err, "failed to sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrapf(err, "failed to close %s", tmpName)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return errors.Wrapf(err, "failed to chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return errors.Wrapf(err, "failed to replace %s", path)
	}
	return nil
}
