package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// WriteCSV encodes the table with a header row. Nulls become empty fields.
func WriteCSV(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.ColumnNames()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for rowIndex, row := range t.Rows {
		for i, value := range row {
			record[i] = FormatValue(value)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", rowIndex, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// FormatValue renders a cell the way it appears in CSV output and previews.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case bool:
		if typed {
			return "true"
		}
		return "false"
	case time.Time:
		return typed.UTC().Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(typed)
	}
}
