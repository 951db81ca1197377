package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepo(t *testing.T) *RecordRepo {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, RunMigrations(db.Writer))
	return NewRecordRepo(db)
}

func TestRecordRepo_PutAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "disp1", []byte{0x01, 0xAA, 0xBB}))

	envelope, err := repo.Get(ctx, "disp1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0xAA, 0xBB}, envelope)
}

func TestRecordRepo_GetMissingReturnsNil(t *testing.T) {
	repo := setupTestRepo(t)

	envelope, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, envelope)
}

func TestRecordRepo_PutOverwrites(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "disp1", []byte{0x01}))
	require.NoError(t, repo.Put(ctx, "disp1", []byte{0x02}))

	envelope, err := repo.Get(ctx, "disp1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02}, envelope)

	ids, err := repo.ListSourceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"disp1"}, ids)
}

func TestRecordRepo_DeleteReportsExistence(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "disp1", []byte{0x01}))

	existed, err := repo.Delete(ctx, "disp1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = repo.Delete(ctx, "disp1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRecordRepo_ListIsSorted(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "win7", []byte{0x01}))
	require.NoError(t, repo.Put(ctx, "disp1", []byte{0x02}))

	ids, err := repo.ListSourceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"disp1", "win7"}, ids)
}
