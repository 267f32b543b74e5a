package history

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the encoded archive.
type Store interface {
	// Save replaces the stored data.
	Save(data []byte) error

	// Load returns the stored data, or nil when nothing was saved yet.
	Load() ([]byte, error)

	Close() error
}

// FileStore keeps the archive in one JSON file. Writes go through a
// temporary file so a crash never leaves a truncated archive.
type FileStore struct {
	Path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Save writes data to the file.
func (s *FileStore) Save(data []byte) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}

// Load reads the file.
func (s *FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Close is a no-op for files.
func (s *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
