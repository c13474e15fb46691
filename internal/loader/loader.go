// Package loader reads a dataset file into a normalized table.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dataq/dataq/internal/sandbox/duckdb"
	"github.com/dataq/dataq/internal/storage"
	"github.com/dataq/dataq/internal/table"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLS     Format = "xls"
	FormatXLSX    Format = "xlsx"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// DetectFormat routes on the file extension, case-insensitively.
func DetectFormat(location string) (Format, error) {
	ext := strings.ToLower(path.Ext(filepath.ToSlash(strings.TrimSpace(location))))
	switch ext {
	case ".csv":
		return FormatCSV, nil
	case ".xls":
		return FormatXLS, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	case ".parquet":
		return FormatParquet, nil
	}
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, location)
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

type Loader struct {
	remote  storage.URIReader
	tempDir string
	logger  *slog.Logger
}

type Option func(*Loader)

// WithRemote enables s3://bucket/key dataset locations.
func WithRemote(remote storage.URIReader) Option {
	return func(l *Loader) { l.remote = remote }
}

func WithTempDir(dir string) Option {
	return func(l *Loader) { l.tempDir = dir }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(opts ...Option) *Loader {
	l := &Loader{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads location, a local path or an s3:// URI, and normalizes it:
// column names are trimmed, lowercased and have whitespace runs replaced by
// underscores; string values are trimmed and lowercased.
func (l *Loader) Load(ctx context.Context, location string) (table.Table, error) {
	format, err := DetectFormat(location)
	if err != nil {
		return table.Table{}, err
	}

	localPath := strings.TrimSpace(location)
	if storage.IsURI(localPath) {
		downloaded, cleanup, err := l.fetch(ctx, localPath, format)
		if err != nil {
			return table.Table{}, err
		}
		defer cleanup()
		localPath = downloaded
	}

	raw, err := readFile(ctx, localPath, format)
	if err != nil {
		return table.Table{}, fmt.Errorf("load %s: %w", location, err)
	}
	normalized := Normalize(raw)
	if err := normalized.Validate(); err != nil {
		return table.Table{}, fmt.Errorf("load %s: %w", location, err)
	}
	l.logger.InfoContext(ctx, "dataset_loaded",
		slog.String("location", location),
		slog.String("format", string(format)),
		slog.Int("rows", normalized.NumRows()),
		slog.Int("columns", normalized.NumCols()),
	)
	return normalized, nil
}

func (l *Loader) fetch(ctx context.Context, uri string, format Format) (string, func(), error) {
	if l.remote == nil {
		return "", nil, fmt.Errorf("load %s: object store is not configured", uri)
	}
	dir, err := os.MkdirTemp(l.tempDir, "dataq-dataset-")
	if err != nil {
		return "", nil, fmt.Errorf("create dataset temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	localPath := filepath.Join(dir, "dataset."+string(format))
	if err := storage.DownloadURI(ctx, l.remote, uri, localPath); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("load %s: %w", uri, err)
	}
	return localPath, cleanup, nil
}

func readFile(ctx context.Context, localPath string, format Format) (table.Table, error) {
	switch format {
	case FormatCSV:
		return duckdb.ReadFile(ctx, localPath, duckdb.ReaderCSV)
	case FormatJSON:
		return duckdb.ReadFile(ctx, localPath, duckdb.ReaderJSON)
	case FormatParquet:
		return duckdb.ReadFile(ctx, localPath, duckdb.ReaderParquet)
	case FormatXLSX:
		return readXLSX(localPath)
	case FormatXLS:
		return readXLS(localPath)
	}
	return table.Table{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}
