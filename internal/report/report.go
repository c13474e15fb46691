// Package report renders the narrative and a result preview into a PDF.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"

	"github.com/dataq/dataq/internal/table"
)

// Rasterizer prints an HTML document to a PDF file at dest.
type Rasterizer interface {
	Rasterize(ctx context.Context, html string, dest string) error
}

// RasterizerFunc adapts a function to Rasterizer.
type RasterizerFunc func(ctx context.Context, html string, dest string) error

func (f RasterizerFunc) Rasterize(ctx context.Context, html string, dest string) error {
	return f(ctx, html, dest)
}

type Renderer struct {
	path       string
	rasterizer Rasterizer
}

// New returns a renderer that writes its PDF to path.
func New(path string, rasterizer Rasterizer) *Renderer {
	return &Renderer{path: path, rasterizer: rasterizer}
}

// GeneratePDF renders the report and returns the path of the written PDF.
func (r *Renderer) GeneratePDF(ctx context.Context, narrative string, preview table.Table, title string) (string, error) {
	if r.rasterizer == nil {
		return "", fmt.Errorf("generate pdf: rasterizer is not configured")
	}
	document, err := RenderHTML(narrative, preview, title)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("generate pdf: create %s: %w", dir, err)
		}
	}
	if err := r.rasterizer.Rasterize(ctx, document, r.path); err != nil {
		return "", fmt.Errorf("generate pdf %s: %w", r.path, err)
	}
	return r.path, nil
}

var documentTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: Arial, sans-serif; font-size: 16px; line-height: 1.6; }
  h1, h2, h3 { margin-top: 1em; }
  table { border-collapse: collapse; }
  th, td { border: 1px solid #999; padding: 4px 8px; text-align: left; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div>{{.Narrative}}</div>
<h2>Data Preview (Head)</h2>
<table>
<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

type documentData struct {
	Title     string
	Narrative template.HTML
	Header    []string
	Rows      [][]string
}

// RenderHTML builds the standalone report document. The narrative is
// markdown; preview cells are escaped.
func RenderHTML(narrative string, preview table.Table, title string) (string, error) {
	var narrativeHTML bytes.Buffer
	if err := goldmark.Convert([]byte(narrative), &narrativeHTML); err != nil {
		return "", fmt.Errorf("render narrative markdown: %w", err)
	}

	data := documentData{
		Title:     title,
		Narrative: template.HTML(narrativeHTML.String()),
		Header:    preview.ColumnNames(),
		Rows:      make([][]string, 0, len(preview.Rows)),
	}
	for _, row := range preview.Rows {
		cells := make([]string, 0, len(row))
		for _, value := range row {
			cells = append(cells, table.FormatValue(value))
		}
		data.Rows = append(data.Rows, cells)
	}

	var out bytes.Buffer
	if err := documentTemplate.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render report html: %w", err)
	}
	return out.String(), nil
}
