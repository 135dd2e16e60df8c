package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func testFile(hash, name string) *IndexedFile {
	return &IndexedFile{
		ContentHash:      hash,
		DisplayName:      name,
		TypeTag:          "pdf",
		SizeBytes:        1024,
		ModifiedAt:       1700000000,
		Description:      "Lecture notes on geometric optics.",
		ShortDescription: "Optics notes",
		Subject:          "Physics",
		Year:             "2023",
		Keywords:         "optics, lenses",
		Embedding:        []float32{0.1, 0.2, 0.3},
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)
}

func TestNewSQLiteStorage_CreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "archive.db")

	storage, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	assert.FileExists(t, dbPath)
}

func TestExists(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	ok, err := storage.Exists(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, storage.UpsertFile(ctx, testFile("abc123", "Notes-2023-Physics")))

	ok, err = storage.Exists(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpsertFile(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	file := testFile("abc123", "Notes-2023-Physics")
	require.NoError(t, storage.UpsertFile(ctx, file))
	assert.False(t, file.IndexedAt.IsZero())

	got, err := storage.GetFile(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Notes-2023-Physics", got.DisplayName)
	assert.Equal(t, "pdf", got.TypeTag)
	assert.Equal(t, int64(1024), got.SizeBytes)
	assert.Equal(t, int64(1700000000), got.ModifiedAt)
	assert.Equal(t, "Physics", got.Subject)
	assert.Equal(t, "2023", got.Year)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
}

func TestUpsertFile_ReplacesSameHash(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertFile(ctx, testFile("abc123", "Notes-2023-Physics")))

	updated := testFile("abc123", "Notes-2024-Physics")
	updated.Year = "2024"
	updated.Embedding = []float32{0.9}
	require.NoError(t, storage.UpsertFile(ctx, updated))

	count, err := storage.CountFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := storage.GetFile(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Notes-2024-Physics", got.DisplayName)
	assert.Equal(t, "2024", got.Year)
	assert.Equal(t, []float32{0.9}, got.Embedding)
}

func TestUpsertFile_NameConflict(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertFile(ctx, testFile("hash-a", "Notes-2023-Physics")))

	err := storage.UpsertFile(ctx, testFile("hash-b", "Notes-2023-Physics"))
	require.ErrorIs(t, err, ErrNameConflict)

	ok, err := storage.Exists(ctx, "hash-b")
	require.NoError(t, err)
	assert.False(t, ok, "conflicting record must not be written")

	got, err := storage.GetFile(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, "Notes-2023-Physics", got.DisplayName, "existing row must not be overwritten")

	require.NoError(t, storage.UpsertFile(ctx, testFile("hash-b", "Notes-2023-Physics_hash-b")))
	count, err := storage.CountFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpsertFile_RequiresEmbedding(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	file := testFile("abc123", "Notes")
	file.Embedding = nil

	err := storage.UpsertFile(ctx, file)
	require.ErrorIs(t, err, ErrMissingEmbedding)

	count, err := storage.CountFiles(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetFile_NotFound(t *testing.T) {
	storage := setupTestDB(t)

	_, err := storage.GetFile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunLifecycle(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	run := &IndexRun{TypeStats: map[string]int{}}
	require.NoError(t, storage.CreateRun(ctx, run))
	assert.Greater(t, run.ID, int64(0))

	got, err := storage.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, got.Running())
	assert.Empty(t, got.TypeStats)

	run.TotalSeen = 3
	run.SuccessCount = 1
	run.FailedCount = 1
	run.SkippedCount = 1
	run.TypeStats = map[string]int{"pdf": 2, "unknown": 1}
	end := time.Now().UTC()
	run.EndedAt = &end
	require.NoError(t, storage.UpdateRun(ctx, run))

	got, err = storage.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, got.Running())
	assert.Equal(t, 3, got.TotalSeen)
	assert.Equal(t, 1, got.SuccessCount)
	assert.Equal(t, 1, got.FailedCount)
	assert.Equal(t, 1, got.SkippedCount)
	assert.Equal(t, map[string]int{"pdf": 2, "unknown": 1}, got.TypeStats)
	assert.WithinDuration(t, end, *got.EndedAt, time.Millisecond)
}

func TestUpdateRun_NotFound(t *testing.T) {
	storage := setupTestDB(t)

	err := storage.UpdateRun(context.Background(), &IndexRun{ID: 42})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestRunAndList(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	_, err := storage.LatestRun(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	var ids []int64
	for i := 0; i < 3; i++ {
		run := &IndexRun{}
		require.NoError(t, storage.CreateRun(ctx, run))
		ids = append(ids, run.ID)
	}
	assert.True(t, sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }), "run ids are monotonic")

	latest, err := storage.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)

	runs, err := storage.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestApplyMigrations_AddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	// A database written before the metadata columns existed.
	_, err = db.ExecContext(ctx, `
		CREATE TABLE indexed_files (
			content_hash TEXT PRIMARY KEY,
			display_name TEXT NOT NULL UNIQUE,
			type_tag TEXT NOT NULL DEFAULT '',
			size_bytes INTEGER NOT NULL DEFAULT 0,
			modified_at INTEGER NOT NULL DEFAULT 0,
			indexed_at TEXT
		);
		INSERT INTO indexed_files (content_hash, display_name) VALUES ('old', 'legacy');
	`)
	require.NoError(t, err)

	require.NoError(t, ApplyMigrations(ctx, db))

	cols, err := tableColumns(ctx, db, "indexed_files")
	require.NoError(t, err)
	for _, name := range []string{"description", "short_description", "subject", "year", "keywords", "embedding"} {
		assert.True(t, cols[name], "column %s should be added", name)
	}

	var name string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT display_name FROM indexed_files WHERE content_hash = 'old'").Scan(&name))
	assert.Equal(t, "legacy", name, "existing rows survive the migration")

	version, err := currentSchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version.String())
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	storage := setupTestDB(t)

	require.NoError(t, ApplyMigrations(ctx, storage.db))

	var n int
	require.NoError(t, storage.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&n))
	assert.Equal(t, len(AllMigrations), n)
}
