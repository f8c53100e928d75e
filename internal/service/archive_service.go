package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/marketglass/marketglass/internal/domain"
)

// ArchiveService exposes the daily book dumps in object storage for offline
// analysis downloads.
type ArchiveService struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveService creates an ArchiveService reading from blobs.
func NewArchiveService(blobs domain.BlobReader, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		blobs:  blobs,
		logger: logger.With(slog.String("component", "archive_service")),
	}
}

// ListArchives returns metadata for every stored daily dump.
func (s *ArchiveService) ListArchives(ctx context.Context) ([]domain.BlobInfo, error) {
	infos, err := s.blobs.List(ctx, domain.ArchivePrefix)
	if err != nil {
		return nil, fmt.Errorf("archive_service: list: %w", err)
	}
	return infos, nil
}

// OpenArchive streams the dump for the given UTC day. Returns
// domain.ErrNotFound when that day was never archived; the existence check
// runs first so a missing day fails before any bytes move.
func (s *ArchiveService) OpenArchive(ctx context.Context, day time.Time) (io.ReadCloser, error) {
	key := domain.ArchiveKey(day)

	ok, err := s.blobs.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("archive_service: check %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("archive_service: %s: %w", key, domain.ErrNotFound)
	}

	rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("archive_service: open %s: %w", key, err)
	}
	return rc, nil
}
