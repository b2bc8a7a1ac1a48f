package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Run is one recorded generate run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	SourceRoot string
	OutputRoot string
	Section    string
	Subgroup   string
	Commit     string
	Dirty      bool
	Documents  int
	Failed     int
	Status     string
}

// DocumentRecord ties a generated document to the module it came from.
type DocumentRecord struct {
	Module      string
	SourcePath  string
	DocPath     string
	Kind        string
	ContentHash string
	Fingerprint string
}

// NewRun starts a run record with a fresh id.
func NewRun(sourceRoot, outputRoot string) *Run {
	return &Run{
		ID:         uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		SourceRoot: sourceRoot,
		OutputRoot: outputRoot,
		Status:     "running",
	}
}

// HistoryStore persists runs and the documents each produced.
type HistoryStore interface {
	// SaveRun stores the run and its documents in one transaction.
	SaveRun(ctx context.Context, run *Run, docs []DocumentRecord) error

	// LatestFingerprints maps module name to API fingerprint as of the most
	// recent successful run over sourceRoot.
	LatestFingerprints(ctx context.Context, sourceRoot string) (map[string]string, error)

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// RunDocuments returns the documents recorded for a run, ordered by path.
	RunDocuments(ctx context.Context, runID string) ([]DocumentRecord, error)

	Close() error
}
