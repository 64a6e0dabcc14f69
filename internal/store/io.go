package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// fileMode is applied to every file this package writes.
const fileMode os.FileMode = 0o600

// loadJSON decodes the file at path into a T. A missing file yields the zero T.
func loadJSON[T any](path string) (T, error) {
	var out T
	b, ok, err := load(path)
	if err != nil || !ok {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

// load reads the file at path. ok is false when it does not exist.
func load(path string) (b []byte, ok bool, err error) {
	b, err = os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	return b, err == nil, err
}

// storeJSON marshals v and replaces path with it atomically.
func storeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return replace(path, b)
}

// replace writes b next to path, fsyncs it and renames it into place, so a
// crash leaves either the old or the new contents. Parent directories are
// created owner-only.
func replace(path string, b []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = f.Chmod(fileMode); err != nil {
		return err
	}
	if _, err = f.Write(b); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
