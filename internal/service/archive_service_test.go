package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketglass/marketglass/internal/domain"
)

type memBlobReader struct {
	objects map[string]string
	gets    []string
}

func (r *memBlobReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	r.gets = append(r.gets, path)
	body, ok := r.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (r *memBlobReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, body := range r.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(body))})
		}
	}
	return infos, nil
}

func (r *memBlobReader) Exists(_ context.Context, path string) (bool, error) {
	_, ok := r.objects[path]
	return ok, nil
}

func TestArchiveServiceListsDumps(t *testing.T) {
	blobs := &memBlobReader{objects: map[string]string{
		"archive/books/2025-03-14.jsonl": "{}\n",
		"unrelated/key":                  "x",
	}}
	svc := NewArchiveService(blobs, discardLogger())

	infos, err := svc.ListArchives(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "archive/books/2025-03-14.jsonl", infos[0].Path)
}

func TestArchiveServiceOpensExistingDay(t *testing.T) {
	blobs := &memBlobReader{objects: map[string]string{
		"archive/books/2025-03-14.jsonl": `{"book":{}}` + "\n",
	}}
	svc := NewArchiveService(blobs, discardLogger())

	rc, err := svc.OpenArchive(context.Background(), time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(body), "book")
}

func TestArchiveServiceMissingDayNotFound(t *testing.T) {
	blobs := &memBlobReader{objects: map[string]string{}}
	svc := NewArchiveService(blobs, discardLogger())

	_, err := svc.OpenArchive(context.Background(), time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, blobs.gets, "missing days fail on the existence check, no read issued")
}
