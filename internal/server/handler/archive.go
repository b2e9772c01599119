package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmatch/nftx/internal/domain"
)

// ArchiveHandler serves the monthly settlement exports out of blob storage.
type ArchiveHandler struct {
	reader domain.BlobReader
	path   func(month time.Time) string
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. path maps a month to its
// object key.
func NewArchiveHandler(reader domain.BlobReader, path func(time.Time) string, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{reader: reader, path: path, logger: logger}
}

// ListArchives lists the available settlement export objects.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.reader.List(r.Context(), "archive/settlements/")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive list failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	type entry struct {
		Path         string    `json:"path"`
		Size         int64     `json:"size"`
		LastModified time.Time `json:"last_modified"`
	}
	entries := make([]entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entry{Path: info.Path, Size: info.Size, LastModified: info.LastModified})
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": entries})
}

// ExportMonth streams one month's settlement export as JSONL.
// GET /api/archives/{month}   (month is YYYY-MM)
func (h *ArchiveHandler) ExportMonth(w http.ResponseWriter, r *http.Request) {
	month, err := time.Parse("2006-01", r.PathValue("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be formatted YYYY-MM")
		return
	}

	body, err := h.reader.Get(r.Context(), h.path(month))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream aborted", slog.String("error", err.Error()))
	}
}
