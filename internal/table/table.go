// Package table holds the in-memory tabular model shared by the loader, the
// sandbox and the report stages.
package table

import (
	"fmt"
	"math"
	"time"
)

type Type string

const (
	TypeInt       Type = "int64"
	TypeFloat     Type = "float64"
	TypeBool      Type = "bool"
	TypeString    Type = "string"
	TypeTimestamp Type = "timestamp"
)

// Numeric reports whether values of this type take part in descriptive
// statistics and correlations.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeFloat
}

type Column struct {
	Name string
	Type Type
}

// Table is a column-named, row-ordered dataset. A nil cell is a null.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// New builds a table and checks that it is well formed.
func New(columns []Column, rows [][]any) (Table, error) {
	t := Table{Columns: columns, Rows: rows}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

func (t Table) NumRows() int { return len(t.Rows) }

func (t Table) NumCols() int { return len(t.Columns) }

func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		names = append(names, column.Name)
	}
	return names
}

// ColumnValues returns the values of column i in row order.
func (t Table) ColumnValues(i int) []any {
	values := make([]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		values = append(values, row[i])
	}
	return values
}

// Validate checks column names are unique and non-empty and every cell
// matches its column type.
func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	for _, column := range t.Columns {
		if column.Name == "" {
			return fmt.Errorf("column name is required")
		}
		if _, ok := seen[column.Name]; ok {
			return fmt.Errorf("duplicate column %q", column.Name)
		}
		seen[column.Name] = struct{}{}
		switch column.Type {
		case TypeInt, TypeFloat, TypeBool, TypeString, TypeTimestamp:
		default:
			return fmt.Errorf("column %q has unknown type %q", column.Name, column.Type)
		}
	}
	for rowIndex, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", rowIndex, len(row), len(t.Columns))
		}
		for i, value := range row {
			if !valueMatches(t.Columns[i].Type, value) {
				return fmt.Errorf("row %d column %q: value %#v is not %s", rowIndex, t.Columns[i].Name, value, t.Columns[i].Type)
			}
		}
	}
	return nil
}

// Clone returns a deep copy; mutating the copy never affects the receiver.
func (t Table) Clone() Table {
	out := Table{
		Columns: make([]Column, len(t.Columns)),
		Rows:    make([][]any, len(t.Rows)),
	}
	copy(out.Columns, t.Columns)
	for i, row := range t.Rows {
		dup := make([]any, len(row))
		copy(dup, row)
		out.Rows[i] = dup
	}
	return out
}

// Head returns a copy holding at most n leading rows.
func (t Table) Head(n int) Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	head := Table{Columns: t.Columns, Rows: t.Rows[:n]}
	return head.Clone()
}

// Equal reports whether both tables have the same columns and cell values.
func (t Table) Equal(other Table) bool {
	if len(t.Columns) != len(other.Columns) || len(t.Rows) != len(other.Rows) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != other.Columns[i] {
			return false
		}
	}
	for i := range t.Rows {
		if len(t.Rows[i]) != len(other.Rows[i]) {
			return false
		}
		for j := range t.Rows[i] {
			if !valuesEqual(t.Rows[i][j], other.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}

func valueMatches(typ Type, value any) bool {
	if value == nil {
		return true
	}
	switch typ {
	case TypeInt:
		_, ok := value.(int64)
		return ok
	case TypeFloat:
		_, ok := value.(float64)
		return ok
	case TypeBool:
		_, ok := value.(bool)
		return ok
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeTimestamp:
		_, ok := value.(time.Time)
		return ok
	}
	return false
}

func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(av) && math.IsNaN(bv) {
			return true
		}
		return av == bv
	default:
		return a == b
	}
}
