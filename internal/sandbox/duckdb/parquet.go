package duckdb

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/dataq/dataq/internal/table"
)

// writeParquet stages t as a flat parquet file with one optional leaf per
// column. Timestamps are stored as int64 microseconds since the epoch.
func writeParquet(path string, t table.Table) error {
	group := parquet.Group{}
	for _, column := range t.Columns {
		leaf, err := parquetLeaf(column.Type)
		if err != nil {
			return fmt.Errorf("column %q: %w", column.Name, err)
		}
		group[column.Name] = parquet.Optional(leaf)
	}
	schema := parquet.NewSchema(inputTable, group)

	// Group fields are ordered by name, not by table position.
	leafIndex := make(map[string]int, len(t.Columns))
	for i, field := range schema.Fields() {
		leafIndex[field.Name()] = i
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	defer func() { _ = file.Close() }()

	rows := make([]parquet.Row, 0, len(t.Rows))
	for _, source := range t.Rows {
		row := make(parquet.Row, len(t.Columns))
		for i, column := range t.Columns {
			index := leafIndex[column.Name]
			row[index] = parquetValue(source[i], index)
		}
		rows = append(rows, row)
	}

	writer := parquet.NewWriter(file, schema)
	if _, err := writer.WriteRows(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return file.Close()
}

func parquetLeaf(typ table.Type) (parquet.Node, error) {
	switch typ {
	case table.TypeInt, table.TypeTimestamp:
		return parquet.Int(64), nil
	case table.TypeFloat:
		return parquet.Leaf(parquet.DoubleType), nil
	case table.TypeBool:
		return parquet.Leaf(parquet.BooleanType), nil
	case table.TypeString:
		return parquet.String(), nil
	default:
		return nil, fmt.Errorf("unsupported column type %q", typ)
	}
}

func parquetValue(value any, columnIndex int) parquet.Value {
	var v parquet.Value
	switch typed := value.(type) {
	case nil:
		return parquet.NullValue().Level(0, 0, columnIndex)
	case int64:
		v = parquet.Int64Value(typed)
	case float64:
		v = parquet.DoubleValue(typed)
	case bool:
		v = parquet.BooleanValue(typed)
	case string:
		v = parquet.ByteArrayValue([]byte(typed))
	case time.Time:
		v = parquet.Int64Value(typed.UnixMicro())
	default:
		return parquet.NullValue().Level(0, 0, columnIndex)
	}
	return v.Level(0, 1, columnIndex)
}
