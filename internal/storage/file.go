package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const defaultFileName = "storage.json"

// File is a Store persisted as a single JSON object on disk. The file is
// re-read on every operation so that another process writing the same file is
// observed (last writer wins).
type File struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*File)(nil)

// NewFile creates a file store at path. An empty path selects
// $HOME/.ocpi-console/storage.json. The parent directory is created with
// owner-only permissions as the store holds credentials.
func NewFile(path string) (*File, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, ".ocpi-console", defaultFileName)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &File{path: path}, nil
}

// Path returns the location of the backing file.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", false, err
	}

	v, ok := values[key]
	return v, ok, nil
}

func (f *File) Set(key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}

	values[key] = value
	return f.write(values)
}

func (f *File) Remove(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}

	for _, k := range keys {
		delete(values, k)
	}
	return f.write(values)
}

func (f *File) read() (map[string]string, error) {
	values := map[string]string{}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	if len(data) == 0 {
		return values, nil
	}

	if err := json.Unmarshal(data, &values); err != nil {
		salvaged := salvage(data)
		log.Warn().Err(err).
			Str("path", f.path).
			Int("kept", len(salvaged)).
			Msg("storage: file is corrupt, it will be replaced on the next write")
		return salvaged, nil
	}

	return values, nil
}

// salvage keeps the string entries of a JSON object whose other entries have
// the wrong type. Anything that is not a JSON object yields an empty map.
func salvage(data []byte) map[string]string {
	values := map[string]string{}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return values
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			values[k] = s
		}
	}
	return values
}

// write replaces the file atomically via a temporary file in the same
// directory.
func (f *File) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".storage-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary storage file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set storage file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close storage file: %w", err)
	}

	return os.Rename(tmp.Name(), f.path)
}
