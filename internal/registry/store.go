package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/models"
)

// Record is the persisted form of one known contract.
type Record struct {
	ExtraStateAttributes models.DiscoveredContract `json:"extra_state_attributes"`
}

// Registry maps configuration entry ids to their known contracts by identity.
type Registry map[string]map[string]Record

// Clone returns a deep copy of the registry.
func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for entryID, records := range r {
		m := make(map[string]Record, len(records))
		for id, rec := range records {
			m[id] = rec
		}
		out[entryID] = m
	}
	return out
}

// Store loads and saves the whole registry.
type Store interface {
	Load() (Registry, error)
	Save(Registry) error
}

// FileStore keeps the registry as a single JSON document.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the registry. A missing file yields an empty registry. A file
// that cannot be decoded is logged and also yields an empty registry.
func (s *FileStore) Load() (Registry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Registry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		logger.Error("%v; starting with an empty registry", &models.PersistenceCorruptionError{Path: s.path, Err: err})
		return Registry{}, nil
	}
	if reg == nil {
		reg = Registry{}
	}
	return reg, nil
}

// Save atomically replaces the registry file: the document is written to a
// temporary file in the same directory and renamed over the target.
func (s *FileStore) Save(reg Registry) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}
