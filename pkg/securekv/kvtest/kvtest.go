// Package kvtest provides contract suites for securekv collaborators.
//
// Every PersistentMap and Vault implementation in this module runs the
// matching suite from its own tests:
//
//	func TestDirContract(t *testing.T) {
//	    kvtest.RunPersistentMapContract(t, func(t *testing.T) securekv.PersistentMap {
//	        m, err := persist.NewDir(t.TempDir())
//	        require.NoError(t, err)
//	        return m
//	    })
//	}
package kvtest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/securekv/pkg/securekv"
)

// awkwardKeys exercise escaping in backends that derive file or resource
// names from keys.
var awkwardKeys = []string{
	"simple",
	"with space",
	"path/like/key",
	"../escape",
	"unicode-ключ-鍵",
	"dots.and:colons",
}

// longKeys are past file name and resource name limits when hex encoded.
// The last two share a long common prefix.
var longKeys = []string{
	"user:" + strings.Repeat("x", 130),
	strings.Repeat("k", 600),
	strings.Repeat("p", 2000) + "-a",
	strings.Repeat("p", 2000) + "-b",
}

// RunPersistentMapContract runs the standard PersistentMap suite. newMap is
// called once per subtest and must return an empty map.
func RunPersistentMapContract(t *testing.T, newMap func(t *testing.T) securekv.PersistentMap) {
	t.Helper()

	t.Run("Contract", func(t *testing.T) {
		t.Run("SetGet", func(t *testing.T) {
			ctx := context.Background()
			m := newMap(t)

			require.NoError(t, m.SetItem(ctx, "alpha", "one"))
			got, ok, err := m.GetItem(ctx, "alpha")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "one", got)
		})

		t.Run("Overwrite", func(t *testing.T) {
			ctx := context.Background()
			m := newMap(t)

			require.NoError(t, m.SetItem(ctx, "alpha", "one"))
			require.NoError(t, m.SetItem(ctx, "alpha", "two"))
			got, ok, err := m.GetItem(ctx, "alpha")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "two", got)
		})

		t.Run("Missing", func(t *testing.T) {
			m := newMap(t)

			got, ok, err := m.GetItem(context.Background(), "nope")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, got)
		})

		t.Run("RemoveIsIdempotent", func(t *testing.T) {
			ctx := context.Background()
			m := newMap(t)

			require.NoError(t, m.SetItem(ctx, "alpha", "one"))
			require.NoError(t, m.RemoveItem(ctx, "alpha"))
			require.NoError(t, m.RemoveItem(ctx, "alpha"))
			require.NoError(t, m.RemoveItem(ctx, "never-set"))

			_, ok, err := m.GetItem(ctx, "alpha")
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run("KeysAreIndependent", func(t *testing.T) {
			ctx := context.Background()
			m := newMap(t)

			for _, k := range awkwardKeys {
				require.NoError(t, m.SetItem(ctx, k, "v:"+k), k)
			}
			require.NoError(t, m.RemoveItem(ctx, awkwardKeys[0]))

			for _, k := range awkwardKeys[1:] {
				got, ok, err := m.GetItem(ctx, k)
				require.NoError(t, err, k)
				assert.True(t, ok, k)
				assert.Equal(t, "v:"+k, got)
			}
		})

		t.Run("LongKeys", func(t *testing.T) {
			ctx := context.Background()
			m := newMap(t)

			for _, k := range longKeys {
				require.NoError(t, m.SetItem(ctx, k, "v:"+k[len(k)-2:]), len(k))
			}
			for _, k := range longKeys {
				got, ok, err := m.GetItem(ctx, k)
				require.NoError(t, err, len(k))
				assert.True(t, ok, len(k))
				assert.Equal(t, "v:"+k[len(k)-2:], got)
			}
			require.NoError(t, m.RemoveItem(ctx, longKeys[0]))
			_, ok, err := m.GetItem(ctx, longKeys[0])
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run("EmptyValue", func(t *testing.T) {
			ctx := context.Background()
			m := newMap(t)

			require.NoError(t, m.SetItem(ctx, "empty", ""))
			got, ok, err := m.GetItem(ctx, "empty")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "", got)
		})
	})
}

// RunVaultContract runs the standard Vault suite against an available vault.
func RunVaultContract(t *testing.T, newVault func(t *testing.T) securekv.Vault) {
	t.Helper()

	t.Run("Contract", func(t *testing.T) {
		t.Run("Available", func(t *testing.T) {
			v := newVault(t)
			assert.True(t, v.IsAvailable(context.Background()))
		})

		t.Run("SetGet", func(t *testing.T) {
			ctx := context.Background()
			v := newVault(t)

			require.NoError(t, v.SetItem(ctx, "alpha", "one"))
			got, ok, err := v.GetItem(ctx, "alpha")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "one", got)
		})

		t.Run("Overwrite", func(t *testing.T) {
			ctx := context.Background()
			v := newVault(t)

			require.NoError(t, v.SetItem(ctx, "alpha", "one"))
			require.NoError(t, v.SetItem(ctx, "alpha", "two"))
			got, _, err := v.GetItem(ctx, "alpha")
			require.NoError(t, err)
			assert.Equal(t, "two", got)
		})

		t.Run("Missing", func(t *testing.T) {
			_, ok, err := newVault(t).GetItem(context.Background(), "nope")
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run("DeleteIsIdempotent", func(t *testing.T) {
			ctx := context.Background()
			v := newVault(t)

			require.NoError(t, v.SetItem(ctx, "alpha", "one"))
			require.NoError(t, v.DeleteItem(ctx, "alpha"))
			require.NoError(t, v.DeleteItem(ctx, "alpha"))

			_, ok, err := v.GetItem(ctx, "alpha")
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run("KeysAreIndependent", func(t *testing.T) {
			ctx := context.Background()
			v := newVault(t)

			for _, k := range awkwardKeys {
				require.NoError(t, v.SetItem(ctx, k, "v:"+k), k)
			}
			for _, k := range awkwardKeys {
				got, ok, err := v.GetItem(ctx, k)
				require.NoError(t, err, k)
				assert.True(t, ok, k)
				assert.Equal(t, "v:"+k, got)
			}
		})

		t.Run("LongKeys", func(t *testing.T) {
			ctx := context.Background()
			v := newVault(t)

			for _, k := range longKeys {
				require.NoError(t, v.SetItem(ctx, k, "v:"+k[len(k)-2:]), len(k))
			}
			for _, k := range longKeys {
				got, ok, err := v.GetItem(ctx, k)
				require.NoError(t, err, len(k))
				assert.True(t, ok, len(k))
				assert.Equal(t, "v:"+k[len(k)-2:], got)
			}
		})
	})
}
