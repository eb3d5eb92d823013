package kv

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offstore/internal/storage"
)

// stores returns a fresh instance of every Store implementation.
func stores(t *testing.T, quota int64) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"), quota)
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemory(quota),
		"sqlite": sq,
	}
}

func TestStore_SetGet(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("formData")
			require.NoError(t, err)
			assert.False(t, ok)

			rev, err := s.Set("formData", "[]", 0)
			require.NoError(t, err)
			assert.Equal(t, int64(1), rev)

			item, ok, err := s.Get("formData")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, Item{Value: "[]", Rev: 1}, item)

			rev, err = s.Set("formData", `[["a",{}]]`, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(2), rev)
		})
	}
}

func TestStore_RevisionConflict(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Set("k", "v1", 0)
			require.NoError(t, err)

			// Creating again with rev 0 collides with the existing key.
			_, err = s.Set("k", "v2", 0)
			assert.ErrorIs(t, err, ErrConflict)

			// Stale revision.
			_, err = s.Set("k", "v2", 5)
			assert.ErrorIs(t, err, ErrConflict)

			// Revision for a key that does not exist.
			_, err = s.Set("absent", "v", 1)
			assert.ErrorIs(t, err, ErrConflict)

			item, _, err := s.Get("k")
			require.NoError(t, err)
			assert.Equal(t, "v1", item.Value, "failed writes must not change the value")
		})
	}
}

func TestStore_RemoveAndKeys(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"b", "a", "c"} {
				_, err := s.Set(k, "x", 0)
				require.NoError(t, err)
			}
			keys, err := s.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, keys)

			require.NoError(t, s.Remove("b"))
			require.NoError(t, s.Remove("missing"))

			keys, err = s.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "c"}, keys)

			// A removed key can be created again from revision 0.
			rev, err := s.Set("b", "y", 0)
			require.NoError(t, err)
			assert.Equal(t, int64(1), rev)
		})
	}
}

func TestStore_Quota(t *testing.T) {
	for name, s := range stores(t, 32) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Set("k", strings.Repeat("x", 20), 0)
			require.NoError(t, err)

			_, err = s.Set("other", strings.Repeat("y", 20), 0)
			require.Error(t, err)
			assert.True(t, storage.IsQuotaExceeded(err), "got %v", err)

			// Shrinking an existing value stays under quota.
			_, err = s.Set("k", "small", 1)
			require.NoError(t, err)

			_, err = s.Set("other", strings.Repeat("y", 20), 0)
			require.NoError(t, err)
		})
	}
}

func TestMemory_UsedTracksRemovals(t *testing.T) {
	m := NewMemory(0)
	_, err := m.Set("ab", "cdef", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(6), m.Used())

	require.NoError(t, m.Remove("ab"))
	assert.Equal(t, int64(0), m.Used())
}

func TestSQLite_SharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	a, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	defer b.Close()

	_, err = a.Set("formData", "[]", 0)
	require.NoError(t, err)

	item, ok, err := b.Get("formData")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = a.Set("formData", "[1]", item.Rev)
	require.NoError(t, err)

	// b still holds the old revision and must not overwrite a's write.
	_, err = b.Set("formData", "[2]", item.Rev)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSQLite_CloseNil(t *testing.T) {
	s := &SQLite{}
	assert.NoError(t, s.Close())
}
