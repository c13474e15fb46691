package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	duckdbdriver "github.com/marcboeker/go-duckdb/v2"

	"github.com/dataq/dataq/internal/sandbox"
	"github.com/dataq/dataq/internal/table"
)

type scope struct {
	db     *sql.DB
	conn   *sql.Conn
	limits sandbox.Limits
	logger *slog.Logger
	closed bool
}

func (s *scope) Exec(ctx context.Context, snippet string) error {
	if s.closed {
		return sandbox.ErrScopeClosed
	}
	if strings.TrimSpace(snippet) == "" {
		return nil
	}
	execCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err := s.conn.ExecContext(execCtx, snippet)
	if err == nil {
		s.logger.DebugContext(ctx, "snippet_executed", slog.Duration("duration", time.Since(start)))
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return sandbox.NewExecError(sandbox.KindTimeout, "execution exceeded %s", s.limits.Timeout)
	}
	return &sandbox.ExecError{Kind: classifyError(err), Err: err}
}

func (s *scope) Result(ctx context.Context) (table.Table, error) {
	if s.closed {
		return table.Table{}, sandbox.ErrScopeClosed
	}
	queryCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	exists, err := s.relationExists(queryCtx)
	if err != nil {
		return table.Table{}, s.wrapQueryError(ctx, queryCtx, err)
	}
	if !exists {
		kind, err := s.nonTableObjectKind(queryCtx)
		if err != nil {
			return table.Table{}, s.wrapQueryError(ctx, queryCtx, err)
		}
		if kind != "" {
			return table.Table{}, sandbox.NewExecError(sandbox.KindValidation, "the generated %q is a %s, not a table", resultTable, kind)
		}
		return table.Table{}, nil
	}

	raw, err := QueryTable(queryCtx, s.conn, "SELECT * FROM "+resultTable)
	if err != nil {
		var convErr *conversionError
		if errors.As(err, &convErr) {
			return table.Table{}, &sandbox.ExecError{Kind: sandbox.KindValidation, Err: err}
		}
		return table.Table{}, s.wrapQueryError(ctx, queryCtx, err)
	}
	result, err := table.New(raw.Columns, raw.Rows)
	if err != nil {
		return table.Table{}, sandbox.NewExecError(sandbox.KindValidation, "the generated %q is not a well-formed table: %v", resultTable, err)
	}
	return result, nil
}

func (s *scope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	connErr := s.conn.Close()
	dbErr := s.db.Close()
	return errors.Join(connErr, dbErr)
}

func (s *scope) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.limits.Timeout > 0 {
		return context.WithTimeout(ctx, s.limits.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *scope) wrapQueryError(parent, queryCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
		return sandbox.NewExecError(sandbox.KindTimeout, "reading %q exceeded %s", resultTable, s.limits.Timeout)
	}
	return &sandbox.ExecError{Kind: sandbox.KindRuntime, Err: err}
}

func (s *scope) relationExists(ctx context.Context) (bool, error) {
	var count int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE lower(table_name) = ?`,
		resultTable,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("look up %s: %w", resultTable, err)
	}
	return count > 0, nil
}

// nonTableObjectKind reports whether result_df names something that is not
// a relation, such as a macro.
func (s *scope) nonTableObjectKind(ctx context.Context) (string, error) {
	lookups := []struct {
		kind  string
		query string
	}{
		{kind: "macro", query: `SELECT count(*) FROM duckdb_functions() WHERE lower(function_name) = ?`},
		{kind: "sequence", query: `SELECT count(*) FROM duckdb_sequences() WHERE lower(sequence_name) = ?`},
		{kind: "type", query: `SELECT count(*) FROM duckdb_types() WHERE lower(type_name) = ?`},
	}
	for _, lookup := range lookups {
		var count int64
		if err := s.conn.QueryRowContext(ctx, lookup.query, resultTable).Scan(&count); err != nil {
			return "", fmt.Errorf("look up %s %s: %w", lookup.kind, resultTable, err)
		}
		if count > 0 {
			return lookup.kind, nil
		}
	}
	return "", nil
}

func classifyError(err error) sandbox.Kind {
	var dbErr *duckdbdriver.Error
	if errors.As(err, &dbErr) {
		switch dbErr.Type {
		case duckdbdriver.ErrorTypeParser, duckdbdriver.ErrorTypeSyntax:
			return sandbox.KindSyntax
		}
	}
	if strings.HasPrefix(err.Error(), "Parser Error") {
		return sandbox.KindSyntax
	}
	return sandbox.KindRuntime
}
