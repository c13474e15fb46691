package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dataq/dataq/internal/table"
)

func previewTable() table.Table {
	return table.Table{
		Columns: []table.Column{
			{Name: "region", Type: table.TypeString},
			{Name: "total", Type: table.TypeFloat},
		},
		Rows: [][]any{
			{"north", 14.5},
			{"<south>", nil},
		},
	}
}

func TestRenderHTML(t *testing.T) {
	document, err := RenderHTML("## Findings\n\n- north leads\n", previewTable(), "Analysis Report")
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	for _, want := range []string{
		"<title>Analysis Report</title>",
		"<h1>Analysis Report</h1>",
		"<h2>Findings</h2>",
		"<li>north leads</li>",
		"<th>region</th><th>total</th>",
		"<td>north</td><td>14.5</td>",
		"<td>&lt;south&gt;</td><td></td>",
		"Data Preview (Head)",
	} {
		if !strings.Contains(document, want) {
			t.Fatalf("RenderHTML() missing %q:\n%s", want, document)
		}
	}
}

func TestGeneratePDFUsesRasterizer(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out", "q_report.pdf")
	var gotHTML string
	rasterizer := RasterizerFunc(func(_ context.Context, html string, path string) error {
		gotHTML = html
		return os.WriteFile(path, []byte("%PDF-1.4"), 0o644)
	})

	path, err := New(dest, rasterizer).GeneratePDF(context.Background(), "Prices rose.", previewTable(), "Prediction Report")
	if err != nil {
		t.Fatalf("GeneratePDF() error = %v", err)
	}
	if path != dest {
		t.Fatalf("GeneratePDF() path = %q, want %q", path, dest)
	}
	if !strings.Contains(gotHTML, "<h1>Prediction Report</h1>") || !strings.Contains(gotHTML, "<p>Prices rose.</p>") {
		t.Fatalf("rasterized html = %s", gotHTML)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
}

func TestGeneratePDFWrapsRasterizerError(t *testing.T) {
	boom := errors.New("chromium crashed")
	rasterizer := RasterizerFunc(func(context.Context, string, string) error { return boom })
	_, err := New(filepath.Join(t.TempDir(), "r.pdf"), rasterizer).GeneratePDF(context.Background(), "x", previewTable(), "Analysis Report")
	if !errors.Is(err, boom) {
		t.Fatalf("GeneratePDF() error = %v, want %v", err, boom)
	}
}

func TestGeneratePDFRequiresRasterizer(t *testing.T) {
	if _, err := New("r.pdf", nil).GeneratePDF(context.Background(), "x", previewTable(), "Analysis Report"); err == nil {
		t.Fatal("GeneratePDF() expected error without rasterizer")
	}
}

func TestChromiumRespectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (&Chromium{}).Rasterize(ctx, "<html></html>", "unused.pdf"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Rasterize() error = %v, want context.Canceled", err)
	}
}
