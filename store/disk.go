package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// DiskStore keeps all records in one JSON file. Writes go through a temp
// file and rename so a crash mid-write can't corrupt the store.
type DiskStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore creates a file-backed store at path. The parent directory
// is created if missing. Pass nil to use the OS filesystem.
func NewDiskStore(fs afero.Fs, path string) (*DiskStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &DiskStore{fs: fs, path: path}, nil
}

func (s *DiskStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return nil, err
	}
	return records[key], nil
}

func (s *DiskStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return err
	}
	records[key] = value
	return s.write(records)
}

func (s *DiskStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return err
	}
	delete(records, key)
	return s.write(records)
}

func (s *DiskStore) Ping(ctx context.Context) error {
	_, err := s.fs.Stat(filepath.Dir(s.path))
	return err
}

func (s *DiskStore) read() (map[string]json.RawMessage, error) {
	raw, err := afero.ReadFile(s.fs, s.path)
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}
	records := map[string]json.RawMessage{}
	if len(raw) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse store file: %w", err)
	}
	return records, nil
}

func (s *DiskStore) write(records map[string]json.RawMessage) error {
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
