// Package session keeps the audit record of one index run up to date.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/storage"
)

// Outcome is the decision taken for a single file.
type Outcome string

const (
	Success Outcome = "success"
	Fail    Outcome = "fail"
	Skip    Outcome = "skip"
)

// UnknownType is the histogram key for files without an extension.
const UnknownType = "unknown"

// ErrFinished is returned when recording into a finished run.
var ErrFinished = errors.New("run already finished")

// RunStore is the subset of storage used by the tracker.
type RunStore interface {
	CreateRun(ctx context.Context, run *storage.IndexRun) error
	UpdateRun(ctx context.Context, run *storage.IndexRun) error
}

// Tracker owns the single IndexRun of a process. It is safe for concurrent
// use; outcomes are applied and persisted one at a time.
type Tracker struct {
	mu       sync.Mutex
	store    RunStore
	run      storage.IndexRun
	finished bool
	logger   *zap.Logger
	now      func() time.Time
}

// Start creates the run row.
func Start(ctx context.Context, store RunStore, logger *zap.Logger) (*Tracker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		store:  store,
		logger: logger.Named("session"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	t.run = storage.IndexRun{
		StartedAt: t.now(),
		TypeStats: map[string]int{},
	}
	if err := store.CreateRun(ctx, &t.run); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	t.logger.Info("run started", zap.Int64("run_id", t.run.ID))
	return t, nil
}

// Record applies one file decision and persists the counters immediately.
// The in-memory counters are updated even when persisting fails.
func (t *Tracker) Record(ctx context.Context, typeTag string, outcome Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return ErrFinished
	}

	switch outcome {
	case Success:
		t.run.SuccessCount++
	case Fail:
		t.run.FailedCount++
	case Skip:
		t.run.SkippedCount++
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	if typeTag == "" {
		typeTag = UnknownType
	}
	t.run.TotalSeen++
	t.run.TypeStats[typeTag]++

	if err := t.store.UpdateRun(ctx, &t.run); err != nil {
		t.logger.Warn("failed to persist run progress", zap.Int64("run_id", t.run.ID), zap.Error(err))
		return fmt.Errorf("failed to persist run: %w", err)
	}
	return nil
}

// Finish stamps the end time and persists the final counters. Only the
// first call has an effect.
func (t *Tracker) Finish(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return nil
	}
	t.finished = true

	end := t.now()
	t.run.EndedAt = &end
	if err := t.store.UpdateRun(ctx, &t.run); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	t.logger.Info("run finished",
		zap.Int64("run_id", t.run.ID),
		zap.Int("total", t.run.TotalSeen),
		zap.Int("success", t.run.SuccessCount),
		zap.Int("failed", t.run.FailedCount),
		zap.Int("skipped", t.run.SkippedCount),
		zap.Duration("duration", end.Sub(t.run.StartedAt)))
	return nil
}

// Snapshot returns a copy of the current run.
func (t *Tracker) Snapshot() storage.IndexRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run.Clone()
}
