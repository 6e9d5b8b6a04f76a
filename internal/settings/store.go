package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store is the load/save hook pair behind the settings service.
type Store interface {
	// Load returns the saved settings, or ok=false when nothing was saved yet.
	Load(ctx context.Context) (s Settings, ok bool, err error)
	Save(ctx context.Context, s Settings) error
}

// FileStore keeps settings in a YAML file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(ctx context.Context) (Settings, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("failed to read settings: %w", err)
	}

	// Start from defaults so keys missing in the file keep their default.
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, false, fmt.Errorf("failed to parse settings %s: %w", f.path, err)
	}
	return s, true, nil
}

// Save writes to a temp file and renames it over the target.
func (f *FileStore) Save(ctx context.Context, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
