package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

const uriScheme = "s3://"

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// URIReader opens objects addressed by s3://bucket/key URIs.
type URIReader interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

func IsURI(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), uriScheme)
}

// ParseURI splits s3://bucket/key into its bucket and key.
func ParseURI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), uriScheme)
	if !ok {
		return "", "", fmt.Errorf("invalid object URI %q: missing %s scheme", uri, uriScheme)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || strings.Trim(key, "/") == "" {
		return "", "", fmt.Errorf("invalid object URI %q: want %sbucket/key", uri, uriScheme)
	}
	return bucket, key, nil
}

func FormatURI(bucket, key string) string {
	return uriScheme + bucket + "/" + strings.TrimPrefix(key, "/")
}

// UploadFile stores the local file at path under key and confirms the
// stored object has the file's size.
func UploadFile(ctx context.Context, store ObjectStore, key, path, contentType string) (ObjectInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if _, err := store.Put(ctx, key, file, stat.Size(), PutOptions{ContentType: contentType}); err != nil {
		return ObjectInfo{}, err
	}
	info, err := store.Stat(ctx, key)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("verify %s: %w", key, err)
	}
	if info.Size != stat.Size() {
		return ObjectInfo{}, fmt.Errorf("verify %s: stored %d bytes, want %d", key, info.Size, stat.Size())
	}
	return info, nil
}

// DownloadURI copies the object at uri to destination.
func DownloadURI(ctx context.Context, reader URIReader, uri, destination string) error {
	body, err := reader.Open(ctx, uri)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	file, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("create %s: %w", destination, err)
	}
	if _, err := io.Copy(file, body); err != nil {
		_ = file.Close()
		return fmt.Errorf("download %s: %w", uri, err)
	}
	return file.Close()
}
