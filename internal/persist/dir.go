package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/systmms/securekv/pkg/securekv"
)

const entryExt = ".entry"

// Dir stores each entry in its own file under a private directory. File
// names come from entryName, so any key is safe to use.
type Dir struct {
	baseDir string
	mu      sync.RWMutex
}

// NewDir creates baseDir (mode 0700) if needed and returns a Dir map on it.
func NewDir(baseDir string) (*Dir, error) {
	if baseDir == "" {
		return nil, errors.New("directory path is required")
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Dir{baseDir: baseDir}, nil
}

// DefaultDir returns the default data directory for a namespace.
func DefaultDir(namespace string) string {
	if dir := os.Getenv("SECUREKV_DATA_DIR"); dir != "" {
		return filepath.Join(dir, namespace)
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "securekv", namespace)
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "securekv", namespace)
	}

	return filepath.Join(os.TempDir(), "securekv", namespace)
}

// Path returns the directory backing the map.
func (d *Dir) Path() string {
	return d.baseDir
}

func (d *Dir) entryPath(key string) string {
	return filepath.Join(d.baseDir, entryName(key)+entryExt)
}

// SetItem writes the value to a temp file and renames it into place so a
// crash never leaves a half-written entry.
func (d *Dir) SetItem(_ context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tmp, err := os.CreateTemp(d.baseDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set entry permissions: %w", err)
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close entry: %w", err)
	}

	if err := os.Rename(tmpName, d.entryPath(key)); err != nil {
		return fmt.Errorf("failed to commit entry: %w", err)
	}
	return nil
}

func (d *Dir) GetItem(_ context.Context, key string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	data, err := os.ReadFile(d.entryPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read entry: %w", err)
	}
	return string(data), true, nil
}

func (d *Dir) RemoveItem(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Remove(d.entryPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove entry: %w", err)
	}
	return nil
}

var _ securekv.PersistentMap = (*Dir)(nil)
