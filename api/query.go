package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/secsage/vulnsage/internal/rag"
)

// maxQueryLength bounds request bodies so one oversized query cannot tie
// up an embedding call.
const maxQueryLength = 4096

type queryHandler struct {
	engine   QueryEngine
	defaultK int
	logger   *slog.Logger
}

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (h *queryHandler) answer(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryLength)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON with a query field", h.logger)
		return
	}
	if req.K <= 0 {
		req.K = h.defaultK
	}

	result, err := h.engine.Answer(r.Context(), req.Query, req.K)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "empty_query", "query must not be empty", h.logger)
			return
		}
		h.logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "query failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result, h.logger)
}
