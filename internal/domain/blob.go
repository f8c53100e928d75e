package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter removes objects from storage. Split from BlobWriter because
// most call sites never delete.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// SnapshotArchiver dumps the cached book snapshots to cold storage.
type SnapshotArchiver interface {
	ArchiveBooks(ctx context.Context, asOf time.Time) (int64, error)
}

// ArchivePrefix is where the daily book dumps live in the bucket.
const ArchivePrefix = "archive/books/"

// ArchiveKey is the object key for the dump of a given UTC day, e.g.
// "archive/books/2025-01-31.jsonl".
func ArchiveKey(day time.Time) string {
	return ArchivePrefix + day.UTC().Format("2006-01-02") + ".jsonl"
}
