package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrNameConflict is returned when a display name is already owned by a
	// different content hash
	ErrNameConflict = errors.New("display name conflict")
	// ErrMissingEmbedding is returned when a file record carries no embedding
	ErrMissingEmbedding = errors.New("record has no embedding")
)

const timeLayout = time.RFC3339Nano

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// A single connection makes every write go through one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", p, err)
		}
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance. The parent
// directory of dbPath is created when missing.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Indexed file operations

// Exists reports whether a record for contentHash has been written.
func (s *SQLiteStorage) Exists(ctx context.Context, contentHash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM indexed_files WHERE content_hash = ? LIMIT 1", contentHash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up hash: %w", err)
	}
	return true, nil
}

// UpsertFile inserts the record or replaces the one with the same content
// hash. It returns ErrNameConflict when file.DisplayName belongs to another
// hash; the existing row is left untouched in that case.
func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *IndexedFile) error {
	if file == nil || file.ContentHash == "" {
		return errors.New("file record requires a content hash")
	}
	if len(file.Embedding) == 0 {
		return ErrMissingEmbedding
	}

	vector, err := json.Marshal(file.Embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx,
		"SELECT content_hash FROM indexed_files WHERE display_name = ? AND content_hash <> ?",
		file.DisplayName, file.ContentHash).Scan(&owner)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %q is owned by %s", ErrNameConflict, file.DisplayName, owner)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to check display name: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO indexed_files (
			content_hash, display_name, type_tag, size_bytes, modified_at,
			description, short_description, subject, year, keywords, embedding, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			display_name = excluded.display_name,
			type_tag = excluded.type_tag,
			size_bytes = excluded.size_bytes,
			modified_at = excluded.modified_at,
			description = excluded.description,
			short_description = excluded.short_description,
			subject = excluded.subject,
			year = excluded.year,
			keywords = excluded.keywords,
			embedding = excluded.embedding,
			indexed_at = excluded.indexed_at
	`
	_, err = tx.ExecContext(ctx, query,
		file.ContentHash, file.DisplayName, file.TypeTag, file.SizeBytes, file.ModifiedAt,
		file.Description, file.ShortDescription, file.Subject, file.Year, file.Keywords,
		string(vector), now.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err, "indexed_files.display_name") {
			return fmt.Errorf("%w: %v", ErrNameConflict, err)
		}
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit file: %w", err)
	}
	file.IndexedAt = now
	return nil
}

// GetFile retrieves the record for contentHash.
func (s *SQLiteStorage) GetFile(ctx context.Context, contentHash string) (*IndexedFile, error) {
	query := `
		SELECT content_hash, display_name, type_tag, size_bytes, modified_at,
			description, short_description, subject, year, keywords, embedding, indexed_at
		FROM indexed_files
		WHERE content_hash = ?
	`
	var (
		f                                          IndexedFile
		desc, short, subject, year, keywords, vec sql.NullString
		indexedAt                                  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, contentHash).Scan(
		&f.ContentHash, &f.DisplayName, &f.TypeTag, &f.SizeBytes, &f.ModifiedAt,
		&desc, &short, &subject, &year, &keywords, &vec, &indexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	f.Description = desc.String
	f.ShortDescription = short.String
	f.Subject = subject.String
	f.Year = year.String
	f.Keywords = keywords.String
	if vec.Valid && vec.String != "" {
		if err := json.Unmarshal([]byte(vec.String), &f.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding: %w", err)
		}
	}
	if indexedAt.Valid {
		f.IndexedAt, _ = time.Parse(timeLayout, indexedAt.String)
	}
	return &f, nil
}

// CountFiles returns the number of indexed files.
func (s *SQLiteStorage) CountFiles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM indexed_files").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

// Index run operations

// CreateRun inserts a new run and assigns its ID.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *IndexRun) error {
	stats, err := encodeTypeStats(run.TypeStats)
	if err != nil {
		return err
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO index_runs (started_at, ended_at, total_seen, success_count, failed_count, skipped_count, type_stats)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		run.StartedAt.Format(timeLayout), formatOptionalTime(run.EndedAt),
		run.TotalSeen, run.SuccessCount, run.FailedCount, run.SkippedCount, stats)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id
	return nil
}

// UpdateRun overwrites the counters and end time of an existing run.
func (s *SQLiteStorage) UpdateRun(ctx context.Context, run *IndexRun) error {
	stats, err := encodeTypeStats(run.TypeStats)
	if err != nil {
		return err
	}

	query := `
		UPDATE index_runs
		SET ended_at = ?, total_seen = ?, success_count = ?, failed_count = ?, skipped_count = ?, type_stats = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		formatOptionalTime(run.EndedAt), run.TotalSeen, run.SuccessCount,
		run.FailedCount, run.SkippedCount, stats, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = "id, started_at, ended_at, total_seen, success_count, failed_count, skipped_count, type_stats"

// GetRun retrieves a run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id int64) (*IndexRun, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM index_runs WHERE id = ?", id)
	return scanRun(row)
}

// LatestRun retrieves the most recently started run.
func (s *SQLiteStorage) LatestRun(ctx context.Context) (*IndexRun, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM index_runs ORDER BY id DESC LIMIT 1")
	return scanRun(row)
}

// ListRuns returns up to limit runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*IndexRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+" FROM index_runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*IndexRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*IndexRun, error) {
	var (
		run       IndexRun
		startedAt string
		endedAt   sql.NullString
		stats     string
	)
	err := row.Scan(&run.ID, &startedAt, &endedAt, &run.TotalSeen, &run.SuccessCount,
		&run.FailedCount, &run.SkippedCount, &stats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("invalid run start time %q: %w", startedAt, err)
	}
	if endedAt.Valid {
		end, err := time.Parse(timeLayout, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid run end time %q: %w", endedAt.String, err)
		}
		run.EndedAt = &end
	}
	run.TypeStats = map[string]int{}
	if stats != "" {
		if err := json.Unmarshal([]byte(stats), &run.TypeStats); err != nil {
			return nil, fmt.Errorf("failed to decode type stats: %w", err)
		}
	}
	return &run, nil
}

func encodeTypeStats(stats map[string]int) (string, error) {
	if stats == nil {
		return "{}", nil
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("failed to encode type stats: %w", err)
	}
	return string(b), nil
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

// isUniqueViolation matches the constraint error text produced by both
// mattn/go-sqlite3 and modernc.org/sqlite.
func isUniqueViolation(err error, column string) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}
