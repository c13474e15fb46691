package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/dataq/dataq/internal/config"
	"github.com/dataq/dataq/internal/ledger"
)

var runRowColumns = []string{
	"run_id", "question", "dataset_path", "classification", "status", "attempts",
	"result_path", "report_path", "result_uri", "report_uri", "error_text", "started_at", "finished_at",
}

func TestStartRun(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO pipeline_run (run_id, question, dataset_path, status)
VALUES ($1, $2, $3, 'running')
RETURNING started_at`)).
		WithArgs("run-1", "total sales by region", "sales.csv").
		WillReturnRows(sqlmock.NewRows([]string{"started_at"}).AddRow(now))

	run, err := repo.StartRun(context.Background(), ledger.StartRunInput{
		RunID:       "run-1",
		Question:    "total sales by region",
		DatasetPath: "sales.csv",
	})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if run.Status != ledger.RunRunning {
		t.Fatalf("Status = %q", run.Status)
	}
	if !run.StartedAt.Equal(now) {
		t.Fatalf("StartedAt = %v, want %v", run.StartedAt, now)
	}
	assertSQLMock(t, mock)
}

func TestRecordAttempt(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO pipeline_attempt`)).
		WithArgs("run-1", 1, "q", "SELECT 1", "syntax", "Parser Error", int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordAttempt(context.Background(), ledger.Attempt{
		RunID:        "run-1",
		AttemptIndex: 1,
		Question:     "q",
		Snippet:      "SELECT 1",
		ErrorKind:    "syntax",
		ErrorText:    "Parser Error",
		DurationMS:   12,
	})
	if err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestFinishRunNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE pipeline_run`)).
		WithArgs("missing", "failed", "analysis", 3, "", "", "", "", "boom").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.FinishRun(context.Background(), ledger.FinishRunInput{
		RunID:          "missing",
		Status:         ledger.RunFailed,
		Classification: "analysis",
		Attempts:       3,
		ErrorText:      "boom",
	})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("FinishRun() error = %v, want %v", err, ledger.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestGetRun(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM pipeline_run WHERE run_id = $1`)).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(runRowColumns).AddRow(
			"run-1", "q", "sales.csv", "prediction", "succeeded", 2,
			"out/q_results.csv", "out/q_report.pdf", "s3://b/runs/run-1/q_results.csv", "", "",
			started, finished,
		))

	run, err := repo.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != ledger.RunSucceeded || run.Attempts != 2 || run.Classification != "prediction" {
		t.Fatalf("GetRun() = %+v", run)
	}
	if run.FinishedAt == nil || !run.FinishedAt.Equal(finished) {
		t.Fatalf("FinishedAt = %v, want %v", run.FinishedAt, finished)
	}
	assertSQLMock(t, mock)
}

func TestGetRunReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM pipeline_run WHERE run_id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetRun(context.Background(), "missing")
	if err != ledger.ErrNotFound {
		t.Fatalf("error = %v, want %v", err, ledger.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestListRunsDefaultsLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	started := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM pipeline_run ORDER BY started_at DESC LIMIT $1`)).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow("run-2", "q2", "b.csv", "", "running", 0, "", "", "", "", "", started, nil).
			AddRow("run-1", "q1", "a.csv", "analysis", "failed", 3, "", "", "", "", "boom", started, started))

	runs, err := repo.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d", len(runs))
	}
	if runs[0].FinishedAt != nil {
		t.Fatalf("running run FinishedAt = %v, want nil", runs[0].FinishedAt)
	}
	if runs[1].ErrorText != "boom" {
		t.Fatalf("ErrorText = %q", runs[1].ErrorText)
	}
	assertSQLMock(t, mock)
}

func TestListAttempts(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM pipeline_attempt WHERE run_id = $1 ORDER BY attempt_index ASC`)).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "attempt_index", "question", "snippet", "error_kind", "error_text", "duration_ms", "created_at"}).
			AddRow("run-1", 1, "q", "SELEC", "syntax", "Parser Error", int64(5), now).
			AddRow("run-1", 2, "q retry", "SELECT 1", "", "", int64(7), now))

	attempts, err := repo.ListAttempts(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ListAttempts() error = %v", err)
	}
	if len(attempts) != 2 || attempts[0].ErrorKind != "syntax" || attempts[1].DurationMS != 7 {
		t.Fatalf("ListAttempts() = %+v", attempts)
	}
	assertSQLMock(t, mock)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), configWithDSN(""))
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func configWithDSN(dsn string) config.LedgerConfig {
	return config.LedgerConfig{DSN: dsn}
}
