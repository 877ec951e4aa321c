package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BartekS5/sql2bq/pkg/models"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps the run state in a JSON document.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load returns an empty state when the file does not exist yet.
func (s *FileStore) Load(_ context.Context) (models.RunState, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewRunState(), nil
	}
	if err != nil {
		return models.RunState{}, fmt.Errorf("read state file: %w", err)
	}

	st := models.NewRunState()
	if err := json.Unmarshal(data, &st); err != nil {
		return models.RunState{}, fmt.Errorf("parse state file '%s': %w", s.Path, err)
	}
	if st.Tables == nil {
		st.Tables = map[string]models.TableState{}
	}
	return st, nil
}

// Save replaces the file atomically.
func (s *FileStore) Save(_ context.Context, st models.RunState) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit state file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
