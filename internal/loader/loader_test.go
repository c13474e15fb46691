package loader

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/xuri/excelize/v2"

	"github.com/dataq/dataq/internal/storage"
	"github.com/dataq/dataq/internal/table"
)

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"data.csv":                FormatCSV,
		"DATA.CSV":                FormatCSV,
		"book.xlsx":               FormatXLSX,
		"legacy.xls":              FormatXLS,
		"rows.json":               FormatJSON,
		"s3://bucket/a/b.parquet": FormatParquet,
	}
	for location, want := range tests {
		got, err := DetectFormat(location)
		if err != nil {
			t.Fatalf("DetectFormat(%q) error = %v", location, err)
		}
		if got != want {
			t.Fatalf("DetectFormat(%q) = %q, want %q", location, got, want)
		}
	}
}

func TestLoadRejectsUnsupportedFormat(t *testing.T) {
	for _, location := range []string{"notes.txt", "noextension", "/tmp/archive.tar.gz"} {
		_, err := New().Load(context.Background(), location)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("Load(%q) error = %v, want ErrUnsupportedFormat", location, err)
		}
	}
}

func TestLoadCSVNormalizesNamesAndStrings(t *testing.T) {
	path := writeFile(t, "sales.csv", "Sales Region,Amount\nNorth,10\nSOUTH,4.5\nNorth,4.5\n")

	got, err := New().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if names := strings.Join(got.ColumnNames(), ","); names != "sales_region,amount" {
		t.Fatalf("ColumnNames() = %q", names)
	}
	if got.NumRows() != 3 {
		t.Fatalf("NumRows() = %d, want 3", got.NumRows())
	}
	if got.Columns[1].Type != table.TypeFloat {
		t.Fatalf("amount type = %q, want float", got.Columns[1].Type)
	}
	if got.Rows[1][0] != "south" {
		t.Fatalf("row 1 region = %#v, want south", got.Rows[1][0])
	}
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	book := excelize.NewFile()
	rows := [][]any{
		{"Region", "Units", "Price", "Active"},
		{" North ", 3, 1.5, "TRUE"},
		{"South", 4, 2, "false"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName() error = %v", err)
		}
		if err := book.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	if err := book.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	_ = book.Close()

	got, err := New().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := table.Table{
		Columns: []table.Column{
			{Name: "region", Type: table.TypeString},
			{Name: "units", Type: table.TypeInt},
			{Name: "price", Type: table.TypeFloat},
			{Name: "active", Type: table.TypeBool},
		},
		Rows: [][]any{
			{"north", int64(3), 1.5, true},
			{"south", int64(4), 2.0, false},
		},
	}
	if !got.Equal(want) {
		t.Fatalf("Load() = %#v, want %#v", got, want)
	}
}

func TestLoadJSONRecords(t *testing.T) {
	path := writeFile(t, "sales.json", `[
  {"Customer Name": "Alice", "Total Amount": 10.5, "Region": " NORTH "},
  {"Customer Name": "Bob", "Total Amount": 3.25, "Region": "South"}
]`)

	got, err := New().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := table.Table{
		Columns: []table.Column{
			{Name: "customer_name", Type: table.TypeString},
			{Name: "total_amount", Type: table.TypeFloat},
			{Name: "region", Type: table.TypeString},
		},
		Rows: [][]any{
			{"alice", 10.5, "north"},
			{"bob", 3.25, "south"},
		},
	}
	if !got.Equal(want) {
		t.Fatalf("Load() = %#v, want %#v", got, want)
	}
}

func TestLoadParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.parquet")
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	copyStmt := `COPY (
  SELECT * FROM (VALUES ('Alice', 10.5::DOUBLE, 3::BIGINT, ' NORTH '), ('Bob', 2.0::DOUBLE, NULL, 'South'))
    AS t("Customer Name", "Total Amount", "Units", "Region")
) TO '` + path + `' (FORMAT parquet)`
	if _, err := db.ExecContext(context.Background(), copyStmt); err != nil {
		t.Fatalf("COPY error = %v", err)
	}

	got, err := New().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := table.Table{
		Columns: []table.Column{
			{Name: "customer_name", Type: table.TypeString},
			{Name: "total_amount", Type: table.TypeFloat},
			{Name: "units", Type: table.TypeInt},
			{Name: "region", Type: table.TypeString},
		},
		Rows: [][]any{
			{"alice", 10.5, int64(3), "north"},
			{"bob", 2.0, nil, "south"},
		},
	}
	if !got.Equal(want) {
		t.Fatalf("Load() = %#v, want %#v", got, want)
	}
}

func TestLoadXLS(t *testing.T) {
	got, err := New().Load(context.Background(), filepath.Join("testdata", "legacy.xls"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := table.Table{
		Columns: []table.Column{
			{Name: "customer_name", Type: table.TypeString},
			{Name: "total_amount", Type: table.TypeFloat},
			{Name: "region", Type: table.TypeString},
		},
		Rows: [][]any{
			{"alice", 10.5, "north"},
			{"bob", 3.0, "south"},
			{"carol", nil, nil},
		},
	}
	if !got.Equal(want) {
		t.Fatalf("Load() = %#v, want %#v", got, want)
	}
}

func TestLoadFromObjectStore(t *testing.T) {
	remote := fakeRemote{objects: map[string]string{
		"datasets/sales.csv": "region,amount\nnorth,1\n",
	}}
	loader := New(WithRemote(remote), WithTempDir(t.TempDir()))

	got, err := loader.Load(context.Background(), "s3://bucket/datasets/sales.csv")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.NumRows() != 1 || got.Rows[0][0] != "north" {
		t.Fatalf("Load() = %#v", got)
	}

	if _, err := loader.Load(context.Background(), "s3://bucket/missing.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrObjectNotFound", err)
	}
}

func TestLoadURIWithoutRemoteFails(t *testing.T) {
	_, err := New().Load(context.Background(), "s3://bucket/sales.csv")
	if err == nil || !strings.Contains(err.Error(), "object store is not configured") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestNormalizeColumnNames(t *testing.T) {
	input := table.Table{
		Columns: []table.Column{
			{Name: "  Total   Sales ", Type: table.TypeFloat},
			{Name: "total_sales", Type: table.TypeFloat},
			{Name: "", Type: table.TypeString},
			{Name: "Total Sales", Type: table.TypeFloat},
		},
		Rows: [][]any{{1.0, 2.0, "  MiXeD ", 3.0}},
	}
	got := Normalize(input)
	want := []string{"total_sales", "total_sales_1", "unnamed_2", "total_sales_2"}
	if strings.Join(got.ColumnNames(), ",") != strings.Join(want, ",") {
		t.Fatalf("ColumnNames() = %v, want %v", got.ColumnNames(), want)
	}
	if got.Rows[0][2] != "mixed" {
		t.Fatalf("string value = %#v, want mixed", got.Rows[0][2])
	}
	if input.Rows[0][2] != "  MiXeD " {
		t.Fatal("Normalize() mutated its input")
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestFromRecordsInfersTypes(t *testing.T) {
	got := fromRecords(
		[]string{"id", "score", "label"},
		[][]string{{"1", "2.5", "a"}, {"2", "", "b", "extra"}, {"", "", ""}},
	)
	if len(got.Columns) != 4 {
		t.Fatalf("columns = %d, want 4", len(got.Columns))
	}
	if got.Columns[0].Type != table.TypeInt || got.Columns[1].Type != table.TypeFloat || got.Columns[2].Type != table.TypeString {
		t.Fatalf("types = %#v", got.Columns)
	}
	if got.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2 (blank rows dropped)", got.NumRows())
	}
	if got.Rows[1][1] != nil {
		t.Fatalf("empty cell = %#v, want nil", got.Rows[1][1])
	}
}

type fakeRemote struct {
	objects map[string]string
}

func (f fakeRemote) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	_, key, err := storage.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader([]byte(data))), nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
