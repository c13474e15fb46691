// Package executor drives the generate-execute-retry loop.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dataq/dataq/internal/observability"
	"github.com/dataq/dataq/internal/sandbox"
	"github.com/dataq/dataq/internal/table"
)

type CodeGenerator interface {
	GenerateCode(ctx context.Context, question string, columns []string) (string, error)
}

// Attempt describes one finished cycle. Kind and Err are empty on success.
type Attempt struct {
	Index    int
	Question string
	Snippet  string
	Kind     sandbox.Kind
	Err      error
	Duration time.Duration
}

func (a Attempt) Succeeded() bool { return a.Err == nil }

type Observer func(ctx context.Context, attempt Attempt)

type Engine struct {
	Source table.Table
	// Sandbox provides a fresh scope for every attempt.
	Sandbox    sandbox.Factory
	MaxRetries int
	Logger     *slog.Logger
	Observer   Observer
}

// ExecuteWithRetry makes at most MaxRetries+1 attempts. Execution and
// validation failures are retried with the error appended to the original
// question; generation failures and infrastructure errors are returned as is.
func (e *Engine) ExecuteWithRetry(ctx context.Context, gen CodeGenerator, question string) (table.Table, error) {
	if e.MaxRetries < 0 {
		return table.Table{}, fmt.Errorf("max retries must be >= 0, got %d", e.MaxRetries)
	}
	if e.Sandbox == nil {
		return table.Table{}, fmt.Errorf("sandbox is required")
	}
	if gen == nil {
		return table.Table{}, fmt.Errorf("code generator is required")
	}
	logger := observability.LoggerForContext(ctx, e.logger())
	columns := e.Source.ColumnNames()

	current := question
	var last *AttemptError
	for i := 0; i <= e.MaxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return table.Table{}, err
		}
		snippet, err := gen.GenerateCode(ctx, current, columns)
		if err != nil {
			return table.Table{}, fmt.Errorf("attempt %d: %w", i+1, err)
		}

		start := time.Now()
		result, err := e.runAttempt(ctx, snippet)
		attempt := Attempt{Index: i, Question: current, Snippet: snippet, Duration: time.Since(start)}
		if err == nil {
			e.observe(ctx, attempt)
			logger.InfoContext(ctx, "attempt_succeeded",
				slog.Int("attempt", i+1),
				slog.Int("rows", result.NumRows()),
				slog.Int("columns", result.NumCols()),
			)
			return result, nil
		}

		kind, ok := sandbox.KindOf(err)
		if !ok {
			return table.Table{}, fmt.Errorf("attempt %d: %w", i+1, err)
		}
		last = &AttemptError{Attempt: i + 1, Kind: kind, Err: err}
		attempt.Kind = kind
		attempt.Err = last
		e.observe(ctx, attempt)
		logger.ErrorContext(ctx, "attempt_failed",
			slog.Int("attempt", i+1),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)

		if i < e.MaxRetries {
			current = RetryQuestion(question, last)
		}
	}
	return table.Table{}, &RetryExhaustedError{Attempts: e.MaxRetries + 1, Last: last}
}

// RetryQuestion derives the next attempt's question from the original one
// and the most recent failure only.
func RetryQuestion(original string, cause error) string {
	return original +
		"\n\nThe code failed with this error:\n" + cause.Error() +
		"\nPlease fix the code accordingly, but keep answering my original request."
}

func (e *Engine) runAttempt(ctx context.Context, snippet string) (table.Table, error) {
	scope, err := e.Sandbox.NewScope(ctx, e.Source.Clone())
	if err != nil {
		return table.Table{}, fmt.Errorf("prepare sandbox: %w", err)
	}
	defer func() {
		if err := scope.Close(); err != nil {
			e.logger().WarnContext(ctx, "sandbox_close_failed", slog.String("error", err.Error()))
		}
	}()
	if err := scope.Exec(ctx, snippet); err != nil {
		return table.Table{}, err
	}
	return scope.Result(ctx)
}

func (e *Engine) observe(ctx context.Context, attempt Attempt) {
	outcome := "success"
	if attempt.Kind != "" {
		outcome = string(attempt.Kind)
	}
	observability.ObserveAttempt(outcome, attempt.Duration)
	if e.Observer != nil {
		e.Observer(ctx, attempt)
	}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

// SaveResults writes t as CSV with a header row and returns destination.
func SaveResults(t table.Table, destination string) (string, error) {
	if dir := filepath.Dir(destination); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", &WriteError{Path: destination, Err: err}
		}
	}
	file, err := os.Create(destination)
	if err != nil {
		return "", &WriteError{Path: destination, Err: err}
	}
	if err := table.WriteCSV(file, t); err != nil {
		_ = file.Close()
		return "", &WriteError{Path: destination, Err: err}
	}
	if err := file.Close(); err != nil {
		return "", &WriteError{Path: destination, Err: err}
	}
	return destination, nil
}
