// Package duckdb runs generated SQL in throwaway in-memory DuckDB databases
// and reads tabular files through DuckDB's readers.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/dataq/dataq/internal/sandbox"
	"github.com/dataq/dataq/internal/table"
)

const (
	inputTable  = "df"
	resultTable = "result_df"
)

// Runtime creates one in-memory database per scope.
type Runtime struct {
	limits  sandbox.Limits
	tempDir string
	logger  *slog.Logger
}

type Option func(*Runtime)

// WithTempDir sets where input tables are staged before loading.
func WithTempDir(dir string) Option {
	return func(r *Runtime) { r.tempDir = dir }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRuntime(limits sandbox.Limits, opts ...Option) *Runtime {
	r := &Runtime{
		limits: limits,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runtime) NewScope(ctx context.Context, input table.Table) (sandbox.Scope, error) {
	if input.NumCols() == 0 {
		return nil, fmt.Errorf("input table has no columns")
	}
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input table: %w", err)
	}

	workDir, err := os.MkdirTemp(r.tempDir, "dataq-scope-")
	if err != nil {
		return nil, fmt.Errorf("create scope temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	stagedPath := filepath.Join(workDir, inputTable+".parquet")
	if err := writeParquet(stagedPath, input); err != nil {
		return nil, fmt.Errorf("stage input table: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("acquire duckdb connection: %w", err)
	}
	s := &scope{db: db, conn: conn, limits: r.limits, logger: r.logger}

	if _, err := conn.ExecContext(ctx, loadInputSQL(input.Columns, stagedPath)); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("load input table: %w", err)
	}
	for _, stmt := range hardeningStatements(r.limits) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("apply sandbox setting %q: %w", stmt, err)
		}
	}
	return s, nil
}

func loadInputSQL(columns []table.Column, path string) string {
	selects := make([]string, 0, len(columns))
	for _, column := range columns {
		ident := quoteIdent(column.Name)
		if column.Type == table.TypeTimestamp {
			selects = append(selects, fmt.Sprintf("make_timestamp(%s) AS %s", ident, ident))
			continue
		}
		selects = append(selects, ident)
	}
	return fmt.Sprintf(`CREATE TABLE %s AS SELECT %s FROM read_parquet(%s)`, inputTable, strings.Join(selects, ", "), quoteString(path))
}

// hardeningStatements runs after the input is loaded: once external access
// is off the staged file can no longer be read, and lock_configuration
// must come last.
func hardeningStatements(limits sandbox.Limits) []string {
	stmts := make([]string, 0, 6)
	if limit := strings.TrimSpace(limits.MemoryLimit); limit != "" {
		stmts = append(stmts, fmt.Sprintf("SET memory_limit = %s", quoteString(limit)))
	}
	if limits.Threads > 0 {
		stmts = append(stmts, fmt.Sprintf("SET threads = %d", limits.Threads))
	}
	return append(stmts,
		"SET autoinstall_known_extensions = false",
		"SET autoload_known_extensions = false",
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	)
}
