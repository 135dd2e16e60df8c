package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting indexed files and index runs.
// It is the only component that writes durable state.
type Storage interface {
	// Indexed file operations
	Exists(ctx context.Context, contentHash string) (bool, error)
	UpsertFile(ctx context.Context, file *IndexedFile) error
	GetFile(ctx context.Context, contentHash string) (*IndexedFile, error)
	CountFiles(ctx context.Context) (int, error)

	// Index run operations
	CreateRun(ctx context.Context, run *IndexRun) error
	UpdateRun(ctx context.Context, run *IndexRun) error
	GetRun(ctx context.Context, id int64) (*IndexRun, error)
	LatestRun(ctx context.Context) (*IndexRun, error)
	ListRuns(ctx context.Context, limit int) ([]*IndexRun, error)

	// Database operations
	Close() error
}

// IndexedFile is one unique piece of content and the metadata derived from it.
type IndexedFile struct {
	ContentHash      string
	DisplayName      string
	TypeTag          string
	SizeBytes        int64
	ModifiedAt       int64 // unix seconds
	Description      string
	ShortDescription string
	Subject          string
	Year             string
	Keywords         string
	Embedding        []float32
	IndexedAt        time.Time
}

// IndexRun is the audit record of a single pipeline invocation.
type IndexRun struct {
	ID           int64
	StartedAt    time.Time
	EndedAt      *time.Time // nil while the run is in progress
	TotalSeen    int
	SuccessCount int
	FailedCount  int
	SkippedCount int
	TypeStats    map[string]int
}

// Running reports whether the run has not been finalized yet.
func (r *IndexRun) Running() bool {
	return r.EndedAt == nil
}

// Clone returns a deep copy of the run.
func (r *IndexRun) Clone() IndexRun {
	c := *r
	if r.EndedAt != nil {
		end := *r.EndedAt
		c.EndedAt = &end
	}
	c.TypeStats = make(map[string]int, len(r.TypeStats))
	for k, v := range r.TypeStats {
		c.TypeStats[k] = v
	}
	return c
}
