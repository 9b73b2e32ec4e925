// duckstore_test.go - Tests for the DuckDB-backed key/value store
package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *DuckStore {
	t.Helper()
	store, err := NewDuckStore(filepath.Join(t.TempDir(), "state", "voodoo.duckdb"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDuckStore_GetMissing(t *testing.T) {
	store := createTestStore(t)

	var v string
	ok, err := store.Get(context.Background(), "endpoint", &v)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestDuckStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)

	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set(ctx, map[string]interface{}{
		"endpoint":       "https://bigblock.example.com",
		"seconds":        30,
		"minimalmode":    true,
		"apikeyIssuedAt": issued,
		"consoleLog":     []string{"a", "b"},
	}))

	t.Run("string", func(t *testing.T) {
		var v string
		ok, err := store.Get(ctx, "endpoint", &v)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "https://bigblock.example.com", v)
	})

	t.Run("int", func(t *testing.T) {
		var v int
		ok, err := store.Get(ctx, "seconds", &v)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 30, v)
	})

	t.Run("bool", func(t *testing.T) {
		var v bool
		ok, err := store.Get(ctx, "minimalmode", &v)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, v)
	})

	t.Run("time", func(t *testing.T) {
		var v time.Time
		ok, err := store.Get(ctx, "apikeyIssuedAt", &v)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, issued.Equal(v))
	})

	t.Run("slice", func(t *testing.T) {
		var v []string
		ok, err := store.Get(ctx, "consoleLog", &v)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, v)
	})
}

func TestDuckStore_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)

	require.NoError(t, store.Set(ctx, map[string]interface{}{"color": "red"}))
	require.NoError(t, store.Set(ctx, map[string]interface{}{"color": "blue"}))

	var v string
	_, err := store.Get(ctx, "color", &v)
	require.NoError(t, err)
	assert.Equal(t, "blue", v)
}

func TestDuckStore_Remove(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)

	require.NoError(t, store.Set(ctx, map[string]interface{}{"apikey": "tok", "name": "Pat"}))
	require.NoError(t, store.Remove(ctx, "apikey", "missing"))

	var v string
	ok, err := store.Get(ctx, "apikey", &v)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Get(ctx, "name", &v)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDuckStore_RemoveAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)
	keys := []string{"apikey", "apikeyIssuedAt"}

	require.NoError(t, store.Set(ctx, map[string]interface{}{"apikey": "tok", "apikeyIssuedAt": time.Now()}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, store.Remove(cancelled, keys...))

	var v interface{}
	for _, key := range keys {
		ok, err := store.Get(ctx, key, &v)
		require.NoError(t, err)
		assert.True(t, ok, "%s kept after a failed remove", key)
	}

	require.NoError(t, store.Remove(ctx, keys...))
	for _, key := range keys {
		ok, err := store.Get(ctx, key, &v)
		require.NoError(t, err)
		assert.False(t, ok, "%s removed", key)
	}
}

func TestDuckStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "voodoo.duckdb")

	store, err := NewDuckStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, map[string]interface{}{"name": "Pat"}))
	require.NoError(t, store.Close())

	reopened, err := NewDuckStore(path, nil, WithThreads(2), WithMemoryLimit("128MB"))
	require.NoError(t, err)
	defer reopened.Close()

	var v string
	ok, err := reopened.Get(ctx, "name", &v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Pat", v)
}

func TestDuckStore_Closed(t *testing.T) {
	store := createTestStore(t)
	require.NoError(t, store.Close())

	var v string
	_, err := store.Get(context.Background(), "name", &v)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.Set(context.Background(), map[string]interface{}{"a": 1}), ErrClosed)
}
