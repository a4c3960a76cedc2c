// Package filex has the few filesystem primitives the disk cache and the
// development media host need: directory creation, atomic writes and a
// link-or-copy fallback.
package filex

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and parents) if missing and returns its absolute path.
// A relative dir is resolved against the working directory.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	return abs, nil
}

// WriteAtomic writes data to a temp file next to path and renames it into
// place, so readers never observe a partially written file.
func WriteAtomic(path string, data []byte) error {
	if _, err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// LinkOrCopy makes alias refer to the same bytes as target. A hard link is
// tried first; filesystems without link support get a copy. An existing
// alias is kept only when it is already a link to target.
func LinkOrCopy(target, alias string) error {
	if ai, err := os.Lstat(alias); err == nil {
		if ti, err := os.Stat(target); err == nil && os.SameFile(ti, ai) {
			return nil
		}
		if err := os.Remove(alias); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale %s: %w", alias, err)
		}
	}

	err := os.Link(target, alias)
	if err == nil || errors.Is(err, os.ErrExist) {
		return nil
	}

	src, err := os.Open(target)
	if err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", target, err)
	}
	return WriteAtomic(alias, data)
}
