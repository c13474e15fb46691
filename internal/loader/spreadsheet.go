package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/dataq/dataq/internal/table"
)

// readXLSX reads the first worksheet; the first row is the header.
func readXLSX(localPath string) (table.Table, error) {
	workbook, err := excelize.OpenFile(localPath)
	if err != nil {
		return table.Table{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = workbook.Close() }()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return table.Table{}, fmt.Errorf("xlsx workbook has no sheets")
	}
	rows, err := workbook.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return table.Table{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return table.Table{}, fmt.Errorf("sheet %q has no header row", sheets[0])
	}
	return fromRecords(rows[0], rows[1:]), nil
}

// readXLS reads the first worksheet of a legacy BIFF workbook.
func readXLS(localPath string) (table.Table, error) {
	workbook, err := xls.Open(localPath, "utf-8")
	if err != nil {
		return table.Table{}, fmt.Errorf("open xls: %w", err)
	}
	if workbook == nil {
		return table.Table{}, fmt.Errorf("open xls: no workbook stream in %s", localPath)
	}
	sheet := workbook.GetSheet(0)
	if sheet == nil {
		return table.Table{}, fmt.Errorf("xls workbook has no sheets")
	}
	headerRow := xlsRow(sheet, 0)
	if headerRow == nil {
		return table.Table{}, fmt.Errorf("sheet %q has no header row", sheet.Name)
	}
	width := 0
	for j := 0; j < xlsMaxColumns; j++ {
		if strings.TrimSpace(headerRow.Col(j)) != "" {
			width = j + 1
		}
	}
	if width == 0 {
		return table.Table{}, fmt.Errorf("sheet %q has no header row", sheet.Name)
	}
	header := make([]string, width)
	for j := range header {
		header[j] = headerRow.Col(j)
	}
	records := make([][]string, 0, int(sheet.MaxRow))
	for i := 1; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			continue
		}
		record := make([]string, width)
		for j := range record {
			record[j] = row.Col(j)
		}
		records = append(records, record)
	}
	return fromRecords(header, records), nil
}

// BIFF8 worksheets hold at most 256 columns.
const xlsMaxColumns = 256

// xlsRow returns nil for rows the sheet never wrote; WorkSheet.Row
// dereferences a nil row for those.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// fromRecords infers one type per column from its non-empty cells: int64,
// then float64, then bool, falling back to string. Empty cells are nulls.
func fromRecords(header []string, records [][]string) table.Table {
	width := len(header)
	for _, record := range records {
		if len(record) > width {
			width = len(record)
		}
	}
	columns := make([]table.Column, width)
	for j := range columns {
		name := ""
		if j < len(header) {
			name = header[j]
		}
		columns[j] = table.Column{Name: name, Type: inferType(records, j)}
	}

	rows := make([][]any, 0, len(records))
	for _, record := range records {
		row := make([]any, width)
		empty := true
		for j := range columns {
			cell := ""
			if j < len(record) {
				cell = strings.TrimSpace(record[j])
			}
			if cell == "" {
				continue
			}
			empty = false
			row[j] = parseCell(columns[j].Type, cell)
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}
	return table.Table{Columns: columns, Rows: rows}
}

func inferType(records [][]string, column int) table.Type {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, record := range records {
		if column >= len(record) {
			continue
		}
		cell := strings.TrimSpace(record[column])
		if cell == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			isFloat = false
		}
		if !strings.EqualFold(cell, "true") && !strings.EqualFold(cell, "false") {
			isBool = false
		}
	}
	switch {
	case !seen:
		return table.TypeString
	case isInt:
		return table.TypeInt
	case isFloat:
		return table.TypeFloat
	case isBool:
		return table.TypeBool
	}
	return table.TypeString
}

func parseCell(typ table.Type, cell string) any {
	switch typ {
	case table.TypeInt:
		v, _ := strconv.ParseInt(cell, 10, 64)
		return v
	case table.TypeFloat:
		v, _ := strconv.ParseFloat(cell, 64)
		return v
	case table.TypeBool:
		return strings.EqualFold(cell, "true")
	}
	return cell
}
