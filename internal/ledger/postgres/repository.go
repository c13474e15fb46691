package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dataq/dataq/internal/ledger"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ ledger.Repository = (*Repository)(nil)

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping ledger db: %w", err)
	}
	return nil
}

func (r *Repository) StartRun(ctx context.Context, in ledger.StartRunInput) (ledger.Run, error) {
	query := `
INSERT INTO pipeline_run (run_id, question, dataset_path, status)
VALUES ($1, $2, $3, 'running')
RETURNING started_at`
	var startedAt time.Time
	if err := r.db.QueryRowContext(ctx, query, in.RunID, in.Question, in.DatasetPath).Scan(&startedAt); err != nil {
		return ledger.Run{}, fmt.Errorf("start run: %w", err)
	}
	return ledger.Run{
		RunID:       in.RunID,
		Question:    in.Question,
		DatasetPath: in.DatasetPath,
		Status:      ledger.RunRunning,
		StartedAt:   startedAt,
	}, nil
}

func (r *Repository) RecordAttempt(ctx context.Context, in ledger.Attempt) error {
	query := `
INSERT INTO pipeline_attempt (run_id, attempt_index, question, snippet, error_kind, error_text, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		in.RunID,
		in.AttemptIndex,
		in.Question,
		in.Snippet,
		in.ErrorKind,
		in.ErrorText,
		in.DurationMS,
	); err != nil {
		return fmt.Errorf("record attempt %d: %w", in.AttemptIndex, err)
	}
	return nil
}

func (r *Repository) FinishRun(ctx context.Context, in ledger.FinishRunInput) error {
	query := `
UPDATE pipeline_run
SET status = $2, classification = $3, attempts = $4, result_path = $5, report_path = $6,
    result_uri = $7, report_uri = $8, error_text = $9, finished_at = NOW()
WHERE run_id = $1`
	res, err := r.db.ExecContext(ctx, query,
		in.RunID,
		string(in.Status),
		in.Classification,
		in.Attempts,
		in.ResultPath,
		in.ReportPath,
		in.ResultURI,
		in.ReportURI,
		in.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows affected: %w", err)
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

const runColumns = `run_id, question, dataset_path, classification, status, attempts,
       result_path, report_path, result_uri, report_uri, error_text, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (ledger.Run, error) {
	var (
		run        ledger.Run
		status     string
		finishedAt sql.NullTime
	)
	if err := row.Scan(
		&run.RunID,
		&run.Question,
		&run.DatasetPath,
		&run.Classification,
		&status,
		&run.Attempts,
		&run.ResultPath,
		&run.ReportPath,
		&run.ResultURI,
		&run.ReportURI,
		&run.ErrorText,
		&run.StartedAt,
		&finishedAt,
	); err != nil {
		return ledger.Run{}, err
	}
	run.Status = ledger.RunStatus(status)
	if finishedAt.Valid {
		at := finishedAt.Time
		run.FinishedAt = &at
	}
	return run, nil
}

func (r *Repository) GetRun(ctx context.Context, runID string) (ledger.Run, error) {
	query := `
SELECT ` + runColumns + `
FROM pipeline_run
WHERE run_id = $1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Run{}, ledger.ErrNotFound
		}
		return ledger.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit
// defaults to 20.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]ledger.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+runColumns+`
FROM pipeline_run
ORDER BY started_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]ledger.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

func (r *Repository) ListAttempts(ctx context.Context, runID string) ([]ledger.Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, attempt_index, question, snippet, error_kind, error_text, duration_ms, created_at
FROM pipeline_attempt
WHERE run_id = $1
ORDER BY attempt_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	attempts := make([]ledger.Attempt, 0)
	for rows.Next() {
		var attempt ledger.Attempt
		if err := rows.Scan(
			&attempt.RunID,
			&attempt.AttemptIndex,
			&attempt.Question,
			&attempt.Snippet,
			&attempt.ErrorKind,
			&attempt.ErrorText,
			&attempt.DurationMS,
			&attempt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt rows: %w", err)
	}
	return attempts, nil
}
