// Package ledger records pipeline runs and their attempts.
package ledger

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("ledger: not found")

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

type Repository interface {
	HealthCheck(ctx context.Context) error
	StartRun(ctx context.Context, in StartRunInput) (Run, error)
	RecordAttempt(ctx context.Context, in Attempt) error
	FinishRun(ctx context.Context, in FinishRunInput) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListAttempts(ctx context.Context, runID string) ([]Attempt, error)
}

type Run struct {
	RunID          string
	Question       string
	DatasetPath    string
	Classification string
	Status         RunStatus
	Attempts       int
	ResultPath     string
	ReportPath     string
	ResultURI      string
	ReportURI      string
	ErrorText      string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// Attempt is one generate-execute-validate cycle. ErrorKind and ErrorText
// are empty for the successful attempt.
type Attempt struct {
	RunID        string
	AttemptIndex int
	Question     string
	Snippet      string
	ErrorKind    string
	ErrorText    string
	DurationMS   int64
	CreatedAt    time.Time
}

type StartRunInput struct {
	RunID       string
	Question    string
	DatasetPath string
}

type FinishRunInput struct {
	RunID          string
	Status         RunStatus
	Classification string
	Attempts       int
	ResultPath     string
	ReportPath     string
	ResultURI      string
	ReportURI      string
	ErrorText      string
}
