package persist

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/securekv/pkg/securekv"
	"github.com/systmms/securekv/pkg/securekv/kvtest"
)

func TestMemoryContract(t *testing.T) {
	t.Parallel()

	kvtest.RunPersistentMapContract(t, func(t *testing.T) securekv.PersistentMap {
		return NewMemory()
	})
}

func TestDirContract(t *testing.T) {
	t.Parallel()

	kvtest.RunPersistentMapContract(t, func(t *testing.T) securekv.PersistentMap {
		m, err := NewDir(t.TempDir())
		require.NoError(t, err)
		return m
	})
}

func TestBoltContract(t *testing.T) {
	t.Parallel()

	kvtest.RunPersistentMapContract(t, func(t *testing.T) securekv.PersistentMap {
		m, err := OpenBolt(filepath.Join(t.TempDir(), "store.db"), "")
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Close() })
		return m
	})
}

func TestMemorySnapshotIsACopy(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	require.NoError(t, m.SetItem(context.Background(), "k", "v"))

	snap := m.Snapshot()
	snap["k"] = "changed"

	got, _, _ := m.GetItem(context.Background(), "k")
	assert.Equal(t, "v", got)
}

func TestNewDir(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "nested", "store")
	d, err := NewDir(base)
	require.NoError(t, err)
	assert.Equal(t, base, d.Path())

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	_, err = NewDir("")
	assert.Error(t, err)
}

func TestDirEntryFiles(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	d, err := NewDir(base)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, d.SetItem(ctx, "../../etc/passwd", "token"))

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")

	name := entries[0].Name()
	assert.True(t, strings.HasSuffix(name, entryExt))
	assert.NotContains(t, name, "/")

	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestDirLongKey(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	d, err := NewDir(base)
	require.NoError(t, err)

	ctx := context.Background()
	key := "user:" + strings.Repeat("x", 250)
	require.NoError(t, d.SetItem(ctx, key, "sealed"))

	got, ok, err := d.GetItem(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sealed", got)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.LessOrEqual(t, len(entries[0].Name()), 255)
}

func TestEntryName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "612f62", entryName("a/b"))

	short := strings.Repeat("a", maxHexName/2)
	assert.Equal(t, strings.Repeat("61", maxHexName/2), entryName(short))

	long := entryName(short + "a")
	assert.Len(t, long, 65)
	assert.True(t, strings.HasPrefix(long, "h"))
	assert.NotEqual(t, long, entryName(short+"b"))
}

func TestDefaultDir(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv

	t.Run("with SECUREKV_DATA_DIR", func(t *testing.T) {
		t.Setenv("SECUREKV_DATA_DIR", "/custom/dir")
		assert.Equal(t, "/custom/dir/myapp", DefaultDir("myapp"))
	})

	t.Run("with XDG_DATA_HOME", func(t *testing.T) {
		t.Setenv("SECUREKV_DATA_DIR", "")
		t.Setenv("XDG_DATA_HOME", "/home/user/.local/share")
		assert.Equal(t, "/home/user/.local/share/securekv/myapp", DefaultDir("myapp"))
	})

	t.Run("fallback to user home", func(t *testing.T) {
		t.Setenv("SECUREKV_DATA_DIR", "")
		t.Setenv("XDG_DATA_HOME", "")
		dir := DefaultDir("myapp")
		assert.Contains(t, dir, "securekv")
		assert.True(t, strings.HasSuffix(dir, "myapp"))
	})
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "store.db")
	ctx := context.Background()

	m, err := OpenBolt(path, "tokens")
	require.NoError(t, err)
	require.NoError(t, m.SetItem(ctx, "session", "sealed"))
	require.NoError(t, m.Close())

	m, err = OpenBolt(path, "tokens")
	require.NoError(t, err)
	defer m.Close()

	got, ok, err := m.GetItem(ctx, "session")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sealed", got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestBoltPrefixIsNotAMatch(t *testing.T) {
	t.Parallel()

	m, err := OpenBolt(filepath.Join(t.TempDir(), "store.db"), "")
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.SetItem(ctx, "sessionX", "v"))

	_, ok, err := m.GetItem(ctx, "session")
	require.NoError(t, err)
	assert.False(t, ok)
}
