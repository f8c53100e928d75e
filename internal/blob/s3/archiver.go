package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketglass/marketglass/internal/domain"
)

// Archiver implements domain.SnapshotArchiver by dumping every cached book
// snapshot to a daily JSONL file in object storage. The cache remains the
// source of live reads; the archive exists for offline analysis and replay.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	books  domain.BookCache
}

// NewArchiver creates an Archiver that reads snapshots from books and writes
// archives through writer. reader is used for retention pruning.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, books domain.BookCache) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		books:  books,
	}
}

// multipartThreshold is the dump size above which the upload switches to
// multipart. Large deployments tracking thousands of books clear this
// easily.
const multipartThreshold = 8 * 1024 * 1024

// archivedBook is the JSONL record shape: the snapshot plus the capture time.
type archivedBook struct {
	CapturedAt time.Time           `json:"captured_at"`
	Book       domain.BookSnapshot `json:"book"`
}

// ArchiveBooks snapshots every cached book into a single JSONL object at
// archive/books/YYYY-MM-DD.jsonl (partitioned by asOf's UTC date) and returns
// the number of books written. Tokens whose cache entry expires mid-run are
// skipped silently.
func (a *Archiver) ArchiveBooks(ctx context.Context, asOf time.Time) (int64, error) {
	tokenIDs, err := a.books.ListTokenIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive books list: %w", err)
	}
	if len(tokenIDs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	var count int64
	for _, tokenID := range tokenIDs {
		snap, err := a.books.GetSnapshot(ctx, tokenID)
		if err != nil {
			if err == domain.ErrNotFound {
				continue
			}
			return 0, fmt.Errorf("s3blob: archive books read %s: %w", tokenID, err)
		}

		rec := archivedBook{CapturedAt: asOf.UTC(), Book: snap}
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("s3blob: archive books encode %s: %w", tokenID, err)
		}
		count++
	}

	if count == 0 {
		return 0, nil
	}

	if err := a.upload(ctx, domain.ArchiveKey(asOf), &buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive books upload: %w", err)
	}

	return count, nil
}

// upload stores one dump, going multipart once the payload is large enough
// to be worth splitting.
func (a *Archiver) upload(ctx context.Context, path string, buf *bytes.Buffer) error {
	if int64(buf.Len()) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, buf, minPartSize)
	}
	return a.writer.Put(ctx, path, buf, "application/x-ndjson")
}

// Prune deletes archive objects last modified before the cutoff. It returns
// the number of objects removed.
func (a *Archiver) Prune(ctx context.Context, before time.Time) (int64, error) {
	deleter, ok := a.reader.(domain.BlobDeleter)
	if !ok {
		return 0, fmt.Errorf("s3blob: prune: reader does not support delete")
	}

	infos, err := a.reader.List(ctx, domain.ArchivePrefix)
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune list: %w", err)
	}

	var removed int64
	for _, info := range infos {
		if !info.LastModified.Before(before) {
			continue
		}
		if err := deleter.Delete(ctx, info.Path); err != nil {
			return removed, fmt.Errorf("s3blob: prune delete %s: %w", info.Path, err)
		}
		removed++
	}
	return removed, nil
}


// Compile-time interface check.
var _ domain.SnapshotArchiver = (*Archiver)(nil)
