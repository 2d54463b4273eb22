package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/secsage/vulnsage/internal/scrape"
	"github.com/secsage/vulnsage/internal/store"
)

const maxListLimit = 200

type vulnHandler struct {
	store  VulnStore
	logger *slog.Logger
}

func (h *vulnHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.Filter{Package: q.Get("package")}

	if raw := q.Get("severity"); raw != "" {
		severity, err := scrape.NormalizeSeverity(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_severity",
				"severity must be one of Critical, High, Medium, Low", h.logger)
			return
		}
		filter.Severity = severity
	}

	var err error
	if filter.Limit, err = positiveIntParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", h.logger)
		return
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset, err = positiveIntParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a positive integer", h.logger)
		return
	}

	records, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("listing vulnerabilities failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "listing failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vulnerabilities": records,
		"count":           len(records),
	}, h.logger)
}

func (h *vulnHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "vulnerability not found", h.logger)
			return
		}
		h.logger.Error("fetching vulnerability failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "lookup failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, rec, h.logger)
}

func (h *vulnHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "vulnerability not found", h.logger)
			return
		}
		h.logger.Error("deleting vulnerability failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "delete failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id}, h.logger)
}

func (h *vulnHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.CollectStats(r.Context())
	if err != nil {
		h.logger.Error("collecting stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "stats collection failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, stats, h.logger)
}

// positiveIntParam parses an optional non-negative integer query param.
func positiveIntParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}
