package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shareandimprove/archivist/internal/analysis"
	"github.com/shareandimprove/archivist/internal/hasher"
	"github.com/shareandimprove/archivist/internal/session"
	"github.com/shareandimprove/archivist/internal/storage"
)

var (
	// ErrRunInProgress is returned when Run is called while another run of
	// the same Indexer is active.
	ErrRunInProgress = errors.New("an index run is already in progress")
	// ErrAnalysisFailed marks files whose analysis did not complete.
	ErrAnalysisFailed = errors.New("analysis failed")
)

// Extractor pulls text out of a file. It reports false when it cannot.
type Extractor interface {
	Extract(ctx context.Context, path, typeTag string) (string, bool)
}

// Analyzer turns a file into metadata and an embedding.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) analysis.Result
}

// Indexer coordinates the pipeline: hash -> dedup -> extract -> analyze ->
// persist -> copy.
type Indexer struct {
	storage   storage.Storage
	extractor Extractor
	analyzer  Analyzer
	outputDir string
	workers   int
	logger    *zap.Logger
	metrics   *metrics

	running atomic.Bool // one Run at a time
	writeMu sync.Mutex  // serializes upserts and their rename retry
	hashes  *hashLocks
}

// Config contains configuration for the indexer
type Config struct {
	OutputDir string // content-addressed blob directory (required)
	Workers   int    // concurrent files (default: 1, strictly sequential)
}

// Options selects what a single run processes.
type Options struct {
	InputDir string
	Force    bool // reprocess files whose hash is already indexed
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	RunID         int64          `json:"run_id"`
	FilesSeen     int            `json:"files_seen"`
	FilesIndexed  int            `json:"files_indexed"`
	FilesSkipped  int            `json:"files_skipped"`
	FilesFailed   int            `json:"files_failed"`
	TypeStats     map[string]int `json:"type_stats"`
	Duration      time.Duration  `json:"duration"`
	ErrorMessages []string       `json:"errors,omitempty"`
}

// New creates a new Indexer instance
func New(store storage.Storage, extractor Extractor, analyzer Analyzer, cfg Config, logger *zap.Logger) (*Indexer, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	outputDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("indexer")

	return &Indexer{
		storage:   store,
		extractor: extractor,
		analyzer:  analyzer,
		outputDir: outputDir,
		workers:   cfg.Workers,
		logger:    logger,
		metrics:   newMetrics(otel.Meter(instrumentationName), logger),
		hashes:    newHashLocks(),
	}, nil
}

// Run walks opts.InputDir and processes every non-hidden file. Per-file
// failures are recorded in the run audit row and never abort the walk.
// The audit row is finalized even when ctx is cancelled.
func (idx *Indexer) Run(ctx context.Context, opts Options) (*Statistics, error) {
	if !idx.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer idx.running.Store(false)

	root, err := filepath.Abs(opts.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve input directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", root)
	}
	outputDir := idx.outputDir
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	tracker, err := session.Start(ctx, idx.storage, idx.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := tracker.Finish(context.WithoutCancel(ctx)); err != nil {
			idx.logger.Error("failed to finalize run", zap.Error(err))
		}
	}()

	startTime := time.Now()
	idx.logger.Info("indexing started",
		zap.String("input", root),
		zap.String("output", outputDir),
		zap.Bool("force", opts.Force),
		zap.Int("workers", idx.workers))

	var (
		errMu  sync.Mutex
		errMsg []string
	)
	var g errgroup.Group
	g.SetLimit(idx.workers)

	walkErr := idx.walk(ctx, root, map[string]bool{outputDir: true}, func(task fileTask) error {
		g.Go(func() error {
			if err := idx.processFile(ctx, task, opts.Force, tracker); err != nil {
				errMu.Lock()
				errMsg = append(errMsg, fmt.Sprintf("%s: %v", task.Path, err))
				errMu.Unlock()
			}
			return nil
		})
		return nil
	})
	_ = g.Wait()

	run := tracker.Snapshot()
	stats := &Statistics{
		RunID:         run.ID,
		FilesSeen:     run.TotalSeen,
		FilesIndexed:  run.SuccessCount,
		FilesSkipped:  run.SkippedCount,
		FilesFailed:   run.FailedCount,
		TypeStats:     run.TypeStats,
		Duration:      time.Since(startTime),
		ErrorMessages: errMsg,
	}

	idx.logger.Info("indexing finished",
		zap.Int64("run_id", stats.RunID),
		zap.Int("seen", stats.FilesSeen),
		zap.Int("indexed", stats.FilesIndexed),
		zap.Int("skipped", stats.FilesSkipped),
		zap.Int("failed", stats.FilesFailed),
		zap.Duration("duration", stats.Duration))

	if walkErr != nil {
		return stats, fmt.Errorf("walk interrupted: %w", walkErr)
	}
	return stats, nil
}

// processFile decides and records the outcome of one file.
func (idx *Indexer) processFile(ctx context.Context, task fileTask, force bool, tracker *session.Tracker) error {
	start := time.Now()
	typeTag := TypeTag(task.Name)

	outcome, err := idx.process(ctx, task, typeTag, force)
	if err != nil {
		idx.logger.Warn("file failed", zap.String("path", task.Path), zap.Error(err))
	} else {
		idx.logger.Debug("file processed", zap.String("path", task.Path), zap.String("outcome", string(outcome)))
	}

	idx.metrics.record(ctx, outcome, typeTag, time.Since(start))
	if rerr := tracker.Record(context.WithoutCancel(ctx), typeTag, outcome); rerr != nil {
		idx.logger.Warn("failed to record outcome", zap.String("path", task.Path), zap.Error(rerr))
	}
	return err
}

func (idx *Indexer) process(ctx context.Context, task fileTask, typeTag string, force bool) (session.Outcome, error) {
	info, err := os.Stat(task.Path)
	if err != nil {
		return session.Fail, fmt.Errorf("stat: %w", err)
	}
	hash, err := hasher.HashFile(task.Path)
	if err != nil {
		return session.Fail, err
	}

	unlock := idx.hashes.Lock(hash)
	defer unlock()

	if !force {
		exists, err := idx.storage.Exists(ctx, hash)
		if err != nil {
			return session.Fail, err
		}
		if exists {
			// Already indexed; a blob that cannot be restored is retried next run.
			if err := idx.restore(task.Path, hash); err != nil {
				idx.logger.Warn("failed to restore blob",
					zap.String("path", task.Path),
					zap.String("hash", hash),
					zap.Error(err))
			}
			return session.Skip, nil
		}
	}

	text, _ := idx.extractor.Extract(ctx, task.Path, typeTag)
	res := idx.analyzer.Analyze(ctx, analysis.Input{
		Path:          task.Path,
		Name:          task.Name,
		SizeBytes:     info.Size(),
		TypeTag:       typeTag,
		Neighbors:     task.Neighbors,
		ExtractedText: text,
	})
	if !res.Complete() {
		return session.Fail, ErrAnalysisFailed
	}

	record := &storage.IndexedFile{
		ContentHash:      hash,
		DisplayName:      res.Metadata.DisplayStem(stem(task.Name)),
		TypeTag:          typeTag,
		SizeBytes:        info.Size(),
		ModifiedAt:       info.ModTime().Unix(),
		Description:      res.Metadata.Description,
		ShortDescription: res.Metadata.ShortDescription,
		Subject:          res.Metadata.Subject,
		Year:             res.Metadata.Year,
		Keywords:         res.Metadata.Keywords,
		Embedding:        res.Embedding,
	}
	if err := idx.persist(ctx, record); err != nil {
		return session.Fail, err
	}

	// The row exists now; a missing blob is restored by the next run's skip path.
	if err := idx.restore(task.Path, hash); err != nil {
		return session.Fail, fmt.Errorf("copy blob: %w", err)
	}
	return session.Success, nil
}

// persist upserts record, renaming it once with a hash fragment when its
// display name is taken by other content.
func (idx *Indexer) persist(ctx context.Context, record *storage.IndexedFile) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	err := idx.storage.UpsertFile(ctx, record)
	if !errors.Is(err, storage.ErrNameConflict) {
		return err
	}

	original := record.DisplayName
	record.DisplayName = original + "_" + record.ContentHash[:6]
	idx.logger.Info("display name taken, renaming",
		zap.String("name", original),
		zap.String("renamed", record.DisplayName))

	if err := idx.storage.UpsertFile(ctx, record); err != nil {
		return fmt.Errorf("persist %q after rename: %w", record.DisplayName, err)
	}
	return nil
}

// BlobPath returns where the bytes of hash are stored.
func (idx *Indexer) BlobPath(hash string) string {
	return filepath.Join(idx.outputDir, hash)
}

// restore copies src to the blob path of hash unless it already exists.
// The copy is written to a temporary file and renamed into place.
func (idx *Indexer) restore(src, hash string) error {
	dst := idx.BlobPath(hash)
	if _, err := os.Stat(dst); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(idx.outputDir, "."+hash+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}

// TypeTag returns the lowercase extension of name without the dot.
func TypeTag(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
