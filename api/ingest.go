package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// maxScrapePages caps one API-triggered run; larger backfills belong in
// the CLI where an operator is watching.
const maxScrapePages = 20

type ingestHandler struct {
	ingestor Ingestor
	logger   *slog.Logger
}

type scrapeRequest struct {
	Pages int `json:"pages"`
}

func (h *ingestHandler) run(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON with a pages field", h.logger)
		return
	}
	if req.Pages < 1 || req.Pages > maxScrapePages {
		writeError(w, http.StatusBadRequest, "invalid_pages", "pages must be between 1 and 20", h.logger)
		return
	}

	stats, err := h.ingestor.Run(r.Context(), req.Pages)
	if err != nil {
		h.logger.Error("ingestion run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "ingestion failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, stats, h.logger)
}

func (h *ingestHandler) reindex(w http.ResponseWriter, r *http.Request) {
	indexed, failed, err := h.ingestor.Reindex(r.Context(), 500)
	if err != nil {
		h.logger.Error("reindex failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "reindex failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"indexed": indexed,
		"failed":  failed,
	}, h.logger)
}
