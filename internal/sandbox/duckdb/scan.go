package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	duckdbdriver "github.com/marcboeker/go-duckdb/v2"

	"github.com/dataq/dataq/internal/table"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// conversionError marks a value DuckDB returned that does not fit the
// column's table type.
type conversionError struct {
	column string
	value  any
	typ    table.Type
}

func (e *conversionError) Error() string {
	return fmt.Sprintf("column %q: cannot represent %v (%T) as %s", e.column, e.value, e.value, e.typ)
}

// QueryTable runs query and materializes the full result as a table.
func QueryTable(ctx context.Context, q queryer, query string) (table.Table, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return table.Table{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return table.Table{}, fmt.Errorf("query columns: %w", err)
	}
	columns := make([]table.Column, len(columnTypes))
	databaseTypes := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		databaseTypes[i] = strings.ToUpper(strings.TrimSpace(columnType.DatabaseTypeName()))
		columns[i] = table.Column{Name: columnType.Name(), Type: tableType(databaseTypes[i])}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return table.Table{}, fmt.Errorf("scan row: %w", err)
		}
		row := make([]any, len(columns))
		for i, value := range values {
			converted, err := convertValue(columns[i].Type, databaseTypes[i], value)
			if err != nil {
				return table.Table{}, &conversionError{column: columns[i].Name, value: value, typ: columns[i].Type}
			}
			row[i] = converted
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return table.Table{}, fmt.Errorf("iterate rows: %w", err)
	}
	return table.Table{Columns: columns, Rows: resultRows}, nil
}

func tableType(databaseType string) table.Type {
	upper := strings.ToUpper(strings.TrimSpace(databaseType))
	switch upper {
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "UHUGEINT":
		return table.TypeInt
	case "FLOAT", "REAL", "DOUBLE":
		return table.TypeFloat
	case "BOOLEAN":
		return table.TypeBool
	case "UUID", "INTERVAL":
		return table.TypeString
	case "DATE":
		return table.TypeTimestamp
	}
	switch {
	case strings.HasPrefix(upper, "DECIMAL"):
		return table.TypeFloat
	case strings.HasPrefix(upper, "TIMESTAMP"):
		return table.TypeTimestamp
	}
	return table.TypeString
}

func convertValue(typ table.Type, databaseType string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch databaseType {
	case "UUID":
		return formatUUID(value)
	case "INTERVAL":
		if typed, ok := value.(duckdbdriver.Interval); ok {
			return formatInterval(typed), nil
		}
	}
	switch typ {
	case table.TypeInt:
		return toInt64(value)
	case table.TypeFloat:
		return toFloat64(value)
	case table.TypeBool:
		if typed, ok := value.(bool); ok {
			return typed, nil
		}
	case table.TypeTimestamp:
		if typed, ok := value.(time.Time); ok {
			return typed.UTC(), nil
		}
	case table.TypeString:
		switch typed := value.(type) {
		case string:
			return typed, nil
		case []byte:
			return string(typed), nil
		case time.Time:
			return typed.Format("15:04:05"), nil
		case fmt.Stringer:
			return typed.String(), nil
		default:
			return fmt.Sprint(typed), nil
		}
	}
	return nil, fmt.Errorf("unexpected %T", value)
}

func toInt64(value any) (any, error) {
	switch typed := value.(type) {
	case int8:
		return int64(typed), nil
	case int16:
		return int64(typed), nil
	case int32:
		return int64(typed), nil
	case int64:
		return typed, nil
	case int:
		return int64(typed), nil
	case uint8:
		return int64(typed), nil
	case uint16:
		return int64(typed), nil
	case uint32:
		return int64(typed), nil
	case uint64:
		if typed > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", typed)
		}
		return int64(typed), nil
	case *big.Int:
		if !typed.IsInt64() {
			return nil, fmt.Errorf("value %s overflows int64", typed)
		}
		return typed.Int64(), nil
	}
	return nil, fmt.Errorf("unexpected %T", value)
}

func toFloat64(value any) (any, error) {
	switch typed := value.(type) {
	case float64:
		return typed, nil
	case float32:
		return float64(typed), nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f, nil
	case duckdbdriver.Decimal:
		return typed.Float64(), nil
	case interface{ Float64() float64 }:
		return typed.Float64(), nil
	}
	converted, err := toInt64(value)
	if err != nil {
		return nil, err
	}
	return float64(converted.(int64)), nil
}

func formatUUID(value any) (any, error) {
	switch typed := value.(type) {
	case []byte:
		id, err := uuid.FromBytes(typed)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case string:
		id, err := uuid.Parse(typed)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case fmt.Stringer:
		return typed.String(), nil
	}
	return nil, fmt.Errorf("unexpected %T", value)
}

// formatInterval renders an interval the way the DuckDB shell does, for
// example "1 year 2 months 3 days 04:05:06.5".
func formatInterval(interval duckdbdriver.Interval) string {
	parts := make([]string, 0, 4)
	plural := func(n int64, unit string) {
		if n == 0 {
			return
		}
		if n == 1 || n == -1 {
			parts = append(parts, fmt.Sprintf("%d %s", n, unit))
			return
		}
		parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
	}
	plural(int64(interval.Months/12), "year")
	plural(int64(interval.Months%12), "month")
	plural(int64(interval.Days), "day")
	if interval.Micros != 0 || len(parts) == 0 {
		micros := interval.Micros
		sign := ""
		if micros < 0 {
			sign = "-"
			micros = -micros
		}
		d := time.Duration(micros) * time.Microsecond
		clock := fmt.Sprintf("%s%02d:%02d:%02d", sign, int64(d/time.Hour), int64(d%time.Hour/time.Minute), int64(d%time.Minute/time.Second))
		if frac := micros % 1_000_000; frac != 0 {
			clock += strings.TrimRight(fmt.Sprintf(".%06d", frac), "0")
		}
		parts = append(parts, clock)
	}
	return strings.Join(parts, " ")
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
