package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one row of the runs table.
type Run struct {
	ID             string
	Command        string
	ArchivePath    string
	Status         Status
	StartedAt      time.Time
	FinishedAt     time.Time
	Batches        int
	Members        int
	SkippedMembers int
	RawRows        int64
	DuplicateRows  int64
	RowErrors      int64
	CanonicalRows  int64
	ErrorKind      string
	ErrorMessage   string
}

// Duration is the wall time of a finished run, or zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Batch is one ingested batch of a run.
type Batch struct {
	Ordinal        int
	Members        int
	SkippedMembers int
	EmptyMembers   int
	Rows           int
	PartitionPath  string
}

// Summary carries the final counters of a run.
type Summary struct {
	Status         Status
	Batches        int
	Members        int
	SkippedMembers int
	RawRows        int64
	DuplicateRows  int64
	RowErrors      int64
	CanonicalRows  int64
	ErrorKind      string
	ErrorMessage   string
}

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// StartRun inserts a running run and returns its id. An empty id is
// replaced with a new UUID.
func (s *Store) StartRun(ctx context.Context, id, command, archivePath string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.exec(ctx,
		`INSERT INTO runs (id, command, archive_path, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, command, archivePath, string(StatusRunning), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordBatch stores the outcome of one batch. Recording the same ordinal
// twice replaces the earlier row.
func (s *Store) RecordBatch(ctx context.Context, runID string, b Batch) error {
	_, err := s.exec(ctx,
		`INSERT OR REPLACE INTO batches
			(run_id, ordinal, members, skipped_members, empty_members, rows, partition_path, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, b.Ordinal, b.Members, b.SkippedMembers, b.EmptyMembers, b.Rows, b.PartitionPath,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert batch %d: %w", b.Ordinal, err)
	}
	return nil
}

// FinishRun stores the final status and counters of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, sum Summary) error {
	if sum.Status == "" {
		sum.Status = StatusSucceeded
	}
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, batches = ?, members = ?, skipped_members = ?,
			raw_rows = ?, duplicate_rows = ?, row_errors = ?, canonical_rows = ?, error_kind = ?, error_message = ?
		 WHERE id = ?`,
		string(sum.Status), time.Now().UTC().Format(timeLayout), sum.Batches, sum.Members, sum.SkippedMembers,
		sum.RawRows, sum.DuplicateRows, sum.RowErrors, sum.CanonicalRows, sum.ErrorKind, sum.ErrorMessage,
		runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `id, command, archive_path, status, started_at, finished_at, batches, members,
	skipped_members, raw_rows, duplicate_rows, row_errors, canonical_rows, error_kind, error_message`

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Batches returns the recorded batches of a run in ordinal order.
func (s *Store) Batches(ctx context.Context, runID string) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, members, skipped_members, empty_members, rows, partition_path
		 FROM batches WHERE run_id = ? ORDER BY ordinal`, runID)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.Ordinal, &b.Members, &b.SkippedMembers, &b.EmptyMembers, &b.Rows, &b.PartitionPath); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		status   string
		started  string
		finished sql.NullString
	)
	err := row.Scan(&run.ID, &run.Command, &run.ArchivePath, &status, &started, &finished,
		&run.Batches, &run.Members, &run.SkippedMembers, &run.RawRows, &run.DuplicateRows,
		&run.RowErrors, &run.CanonicalRows, &run.ErrorKind, &run.ErrorMessage)
	if err != nil {
		return Run{}, err
	}
	run.Status = Status(status)
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid && finished.String != "" {
		if run.FinishedAt, err = time.Parse(timeLayout, finished.String); err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return run, nil
}
