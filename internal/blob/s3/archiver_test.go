package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketglass/marketglass/internal/domain"
)

type fakeBookCache struct {
	books map[string]domain.BookSnapshot
}

func (f *fakeBookCache) SetSnapshot(_ context.Context, tokenID string, snap domain.BookSnapshot) error {
	f.books[tokenID] = snap
	return nil
}

func (f *fakeBookCache) GetSnapshot(_ context.Context, tokenID string) (domain.BookSnapshot, error) {
	snap, ok := f.books[tokenID]
	if !ok {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (f *fakeBookCache) ListTokenIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.books))
	for id := range f.books {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeWriter struct {
	puts      map[string][]byte
	multipart map[string][]byte
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.puts[path] = b
	return nil
}

func (f *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.multipart == nil {
		f.multipart = map[string][]byte{}
	}
	f.multipart[path] = b
	return nil
}

func TestArchiveBooksWritesDailyJSONL(t *testing.T) {
	cache := &fakeBookCache{books: map[string]domain.BookSnapshot{
		"tok-1": {TokenID: "tok-1", Outcome: "Yes"},
		"tok-2": {TokenID: "tok-2", Outcome: "No"},
	}}
	writer := &fakeWriter{puts: map[string][]byte{}}

	arch := NewArchiver(writer, nil, cache)

	asOf := time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC)
	n, err := arch.ArchiveBooks(context.Background(), asOf)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	data, ok := writer.puts["archive/books/2025-03-14.jsonl"]
	require.True(t, ok, "expected daily archive object, got keys %v", writer.puts)
	assert.Empty(t, writer.multipart, "small dumps go through a single put")

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 2)

	var rec archivedBook
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, asOf, rec.CapturedAt)
	assert.NotEmpty(t, rec.Book.TokenID)
}

func TestArchiveBooksEmptyCacheWritesNothing(t *testing.T) {
	cache := &fakeBookCache{books: map[string]domain.BookSnapshot{}}
	writer := &fakeWriter{puts: map[string][]byte{}}

	arch := NewArchiver(writer, nil, cache)

	n, err := arch.ArchiveBooks(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.puts)
}

func TestUploadSwitchesToMultipartForLargeDumps(t *testing.T) {
	writer := &fakeWriter{puts: map[string][]byte{}}
	arch := NewArchiver(writer, nil, &fakeBookCache{books: map[string]domain.BookSnapshot{}})

	big := bytes.NewBuffer(bytes.Repeat([]byte("x"), multipartThreshold))
	require.NoError(t, arch.upload(context.Background(), "archive/books/2025-03-15.jsonl", big))

	assert.Empty(t, writer.puts)
	assert.Len(t, writer.multipart["archive/books/2025-03-15.jsonl"], multipartThreshold)
}
