package uploads

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/client/storage"
	"github.com/dmitrijs2005/remotestorage/internal/remotestorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "uploads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func meta(id string, target remotestorage.Target, at time.Time) remotestorage.UploadedMeta {
	return remotestorage.UploadedMeta{
		UploadID:   id,
		Target:     target,
		Name:       id + ".txt",
		Mime:       "text/plain",
		Size:       12,
		Key:        "uploads/" + id,
		Link:       "https://bucket.example.com/uploads/" + id,
		UploadedAt: at,
	}
}

func TestSQLiteRepository_PutGet(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))
	target := remotestorage.Target{Purpose: "chat-attachment", Context: "chat-1"}
	at := time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC)

	_, ok, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	m := meta("u1", target, at)
	require.NoError(t, repo.Put(ctx, m))

	got, ok, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(got.UploadedAt))
	got.UploadedAt = m.UploadedAt
	assert.Equal(t, m, got)

	m.Link = "https://bucket.example.com/moved"
	require.NoError(t, repo.Put(ctx, m))
	got, _, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, m.Link, got.Link)
}

func TestSQLiteRepository_ListByTarget(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))
	chat := remotestorage.Target{Purpose: "chat-attachment", Context: "chat-1"}
	other := remotestorage.Target{Purpose: "chat-attachment", Context: "chat-2"}
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Put(ctx, meta("old", chat, base)))
	require.NoError(t, repo.Put(ctx, meta("new", chat, base.Add(time.Hour))))
	require.NoError(t, repo.Put(ctx, meta("elsewhere", other, base)))

	list, err := repo.ListByTarget(ctx, chat)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].UploadID)
	assert.Equal(t, "old", list[1].UploadID)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Put(ctx, meta("a", remotestorage.Target{}, base)))
	require.NoError(t, repo.Put(ctx, meta("b", remotestorage.Target{}, base.Add(48*time.Hour))))

	n, err := Purge(ctx, db, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, ok, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = repo.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = Purge(ctx, db, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteRepository_AsUploadIndex(t *testing.T) {
	var idx remotestorage.UploadIndex = NewSQLiteRepository(setupDB(t))
	require.NoError(t, idx.Put(context.Background(), meta("x", remotestorage.Target{}, time.Now())))
	_, ok, err := idx.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, ok)
}
