package store

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
)

// keyPattern restricts file-store keys to names that are safe as file
// names. The host app's keys are plain identifiers.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// File is a directory-backed KV: one JSON file per key. It is the
// daemon's stand-in for the host platform's persisted store.
type File struct {
	dir string
}

// NewFile creates the backing directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create store directory")
	}
	return &File{dir: dir}, nil
}

func (f *File) Get(key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read key %q", key)
	}
	return data, nil
}

func (f *File) Set(key string, value []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	// Write-then-rename so a crashed write never leaves a torn blob.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write key %q", key)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed to commit key %q", key)
	}
	return nil
}

func (f *File) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", errors.Errorf("invalid store key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}
