// Package indexer drives an index run over a directory tree.
//
// For every non-hidden file the indexer computes the SHA-256 content hash,
// consults the store, and either skips the file (making sure its blob exists
// in the output directory) or runs extraction and AI analysis, persists the
// result and copies the bytes to <output>/<hash>.
//
// # Outcomes
//
// Each file ends in exactly one outcome, recorded in the run's audit row:
//   - success: metadata and embedding were stored and the blob is in place
//   - skip: the hash was already indexed and force mode is off
//   - fail: anything else; the walk continues
//
// A row is only written after analysis and embedding both succeeded, and the
// blob is copied only after the row was written.
//
// # Naming
//
// Display names are unique. When the suggested name belongs to other
// content, the first six hex characters of the hash are appended and the
// write is retried exactly once.
//
// # Concurrency
//
// Config.Workers bounds the number of files processed at once (default 1).
// Files with the same hash never run concurrently, upserts go through a
// single writer, and the session tracker serializes counter updates.
//
// # Basic Usage
//
//	idx, err := indexer.New(store, extract.New(logger), orchestrator, indexer.Config{
//	    OutputDir: "archive/",
//	    Workers:   4,
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stats, err := idx.Run(ctx, indexer.Options{InputDir: "inbox/"})
//	fmt.Printf("indexed %d, skipped %d, failed %d\n",
//	    stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed)
package indexer
