package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/marketglass/marketglass/internal/domain"
)

// ArchiveService is the slice of the archive service the handler needs.
type ArchiveService interface {
	ListArchives(ctx context.Context) ([]domain.BlobInfo, error)
	OpenArchive(ctx context.Context, day time.Time) (io.ReadCloser, error)
}

// ArchiveHandler serves the daily book dump endpoints.
type ArchiveHandler struct {
	archives ArchiveService
	logger   *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archives ArchiveService, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archives: archives,
		logger:   logger.With(slog.String("handler", "archives")),
	}
}

type archiveEntry struct {
	Date         string    `json:"date"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListArchives returns the available daily dumps.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.archives.ListArchives(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archives failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	entries := make([]archiveEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, archiveEntry{
			Date:         archiveDate(info.Path),
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"archives": entries})
}

// DownloadArchive streams one day's dump as NDJSON.
// GET /api/archives/{date}
func (h *ArchiveHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	day, err := time.Parse("2006-01-02", pathParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	rc, err := h.archives.OpenArchive(r.Context(), day)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no archive for that day")
			return
		}
		h.logger.ErrorContext(r.Context(), "open archive failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to open archive")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted", slog.String("error", err.Error()))
	}
}

// archiveDate pulls the YYYY-MM-DD portion out of an archive object key.
func archiveDate(path string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, domain.ArchivePrefix), ".jsonl")
}
