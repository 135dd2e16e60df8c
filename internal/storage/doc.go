// Package storage provides SQLite-based persistence for indexed files and
// the audit trail of index runs.
//
// The storage layer manages:
//   - Indexed files keyed by SHA-256 content hash
//   - Unique display names for every indexed file
//   - AI-derived metadata and the embedding of each file
//   - One audit row per pipeline run with outcome counters
//
// # Database Schema
//
// Tables:
//   - indexed_files: one row per unique content hash
//   - index_runs: counters and per-type histogram of each run
//   - schema_version: applied migrations
//
// Migrations are ordered by semantic version and only ever add objects:
// columns missing from an older database are appended in place.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("data/archive.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	indexed, err := db.Exists(ctx, hash)
//
//	err = db.UpsertFile(ctx, &storage.IndexedFile{
//	    ContentHash: hash,
//	    DisplayName: "Notes-2023-Physics-Optics",
//	    Embedding:   vector,
//	})
//	if errors.Is(err, storage.ErrNameConflict) {
//	    // pick another name and retry
//	}
//
// # Drivers
//
// The default build uses modernc.org/sqlite. Building with
// -tags sqlite_cgo (and CGO enabled) switches to github.com/mattn/go-sqlite3.
// All writes go through a single connection.
package storage
