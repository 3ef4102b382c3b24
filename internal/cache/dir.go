package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DirCache persists entries as one file per key under a directory, surviving
// process restarts. Writes go through a temporary file and rename so a
// crashed write never leaves a truncated entry.
type DirCache struct {
	dir string
}

func NewDirCache(dir string) (*DirCache, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &DirCache{dir: dir}, nil
}

func (c *DirCache) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	return data, true, nil
}

func (c *DirCache) Put(key string, value []byte) error {
	tmp, err := os.CreateTemp(c.dir, "entry-*")
	if err != nil {
		return fmt.Errorf("stage cache entry %s: %w", key, err)
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close cache entry %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("commit cache entry %s: %w", key, err)
	}
	return nil
}

func (c *DirCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
