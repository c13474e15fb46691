package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dataq/dataq/internal/table"
)

// Reader names a DuckDB table function that scans a file.
type Reader string

const (
	ReaderCSV     Reader = "read_csv_auto"
	ReaderJSON    Reader = "read_json_auto"
	ReaderParquet Reader = "read_parquet"
)

// ReadFile loads a whole file with the given reader into a table.
func ReadFile(ctx context.Context, path string, reader Reader) (table.Table, error) {
	switch reader {
	case ReaderCSV, ReaderJSON, ReaderParquet:
	default:
		return table.Table{}, fmt.Errorf("unsupported reader %q", reader)
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return table.Table{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	result, err := QueryTable(ctx, db, fmt.Sprintf("SELECT * FROM %s(%s)", reader, quoteString(path)))
	if err != nil {
		return table.Table{}, fmt.Errorf("read %s: %w", path, err)
	}
	return result, nil
}
