package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	perrors "py2md/internal/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ HistoryStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, perrors.Wrap(err, perrors.ErrIO, path, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrIO, path, "failed to open history database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, perrors.Wrap(err, perrors.ErrIO, path, "failed to open history database")
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT,
			finished_at TEXT,
			source_root TEXT,
			output_root TEXT,
			section TEXT,
			subgroup TEXT,
			commit_sha TEXT,
			dirty INTEGER,
			documents INTEGER,
			failed INTEGER,
			status TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			run_id TEXT,
			module TEXT,
			source_path TEXT,
			doc_path TEXT,
			kind TEXT,
			content_hash TEXT,
			fingerprint TEXT,
			PRIMARY KEY (run_id, doc_path)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source_root, started_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run, docs []DocumentRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, source_root, output_root, section, subgroup, commit_sha, dirty, documents, failed, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at=excluded.finished_at,
			commit_sha=excluded.commit_sha,
			dirty=excluded.dirty,
			documents=excluded.documents,
			failed=excluded.failed,
			status=excluded.status
	`, run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.SourceRoot, run.OutputRoot,
		run.Section, run.Subgroup, run.Commit, run.Dirty, run.Documents, run.Failed, run.Status)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE run_id = ?", run.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (run_id, module, source_path, doc_path, kind, content_hash, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, run.ID, d.Module, d.SourcePath, d.DocPath, d.Kind, d.ContentHash, d.Fingerprint); err != nil {
			return fmt.Errorf("failed to save document %s: %w", d.DocPath, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LatestFingerprints(ctx context.Context, sourceRoot string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.module, d.fingerprint FROM documents d
		WHERE d.run_id = (
			SELECT id FROM runs
			WHERE source_root = ? AND status = 'ok'
			ORDER BY started_at DESC LIMIT 1
		) AND d.module != ''
	`, sourceRoot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var module, fp string
		if err := rows.Scan(&module, &fp); err != nil {
			return nil, err
		}
		out[module] = fp
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, source_root, output_root, section, subgroup, commit_sha, dirty, documents, failed, status
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.SourceRoot, &r.OutputRoot, &r.Section, &r.Subgroup,
			&r.Commit, &r.Dirty, &r.Documents, &r.Failed, &r.Status); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) RunDocuments(ctx context.Context, runID string) ([]DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT module, source_path, doc_path, kind, content_hash, fingerprint
		FROM documents WHERE run_id = ? ORDER BY doc_path
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.Module, &d.SourcePath, &d.DocPath, &d.Kind, &d.ContentHash, &d.Fingerprint); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Timestamps are stored as fixed-width RFC3339 so they sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
