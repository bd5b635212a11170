package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gurpartap/carecompanion/session"
	"github.com/Gurpartap/carecompanion/threadstore"
	"github.com/Gurpartap/carecompanion/threadstore/sqlite"
)

func newStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveLoadDelete(t *testing.T) {
	t.Parallel()

	store := newStore(t, filepath.Join(t.TempDir(), "threads.db"))
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "family")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, "family", "thread-1"))
	require.NoError(t, store.Save(ctx, "family", "thread-2"))
	require.NoError(t, store.Save(ctx, "solo", "thread-3"))

	threadID, ok, err := store.Load(ctx, "family")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, session.ThreadID("thread-2"), threadID)

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	keys := []string{records[0].Key, records[1].Key}
	assert.ElementsMatch(t, []string{"family", "solo"}, keys)
	for _, record := range records {
		assert.False(t, record.UpdatedAt.IsZero())
	}

	require.NoError(t, store.Delete(ctx, "family"))
	_, ok, err = store.Load(ctx, "family")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "threads.db")
	first, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(context.Background(), "family", "thread-1"))
	require.NoError(t, first.Close())

	second := newStore(t, path)
	threadID, ok, err := second.Load(context.Background(), "family")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, session.ThreadID("thread-1"), threadID)
}

func TestStore_Validation(t *testing.T) {
	t.Parallel()

	store := newStore(t, filepath.Join(t.TempDir(), "threads.db"))
	ctx := context.Background()

	assert.ErrorIs(t, store.Save(ctx, " ", "thread-1"), threadstore.ErrKeyRequired)
	assert.ErrorIs(t, store.Save(ctx, "key", session.NoThread), threadstore.ErrThreadIDRequired)
	assert.ErrorIs(t, store.Delete(ctx, ""), threadstore.ErrKeyRequired)
	_, _, err := store.Load(ctx, "")
	assert.ErrorIs(t, err, threadstore.ErrKeyRequired)

	_, err = sqlite.New("  ")
	assert.Error(t, err)
}
