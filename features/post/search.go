package post

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"sourcefetch/internal/middleware"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

type SearchHit struct {
	PostID     string  `json:"post_id"`
	SourceID   string  `json:"source_id"`
	ExternalID string  `json:"external_id"`
	Title      string  `json:"title"`
	URL        string  `json:"url,omitempty"`
	Score      float32 `json:"score"`
}

type Searcher interface {
	Search(ctx context.Context, query, sourceID string, limit int) ([]SearchHit, error)
}

type SearchHandler struct {
	searcher Searcher
}

func NewSearchHandler(s Searcher) *SearchHandler {
	return &SearchHandler{searcher: s}
}

// Search serves GET /posts/search?q=...&source_id=...&limit=...
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	query := q.Get("q")
	if query == "" {
		writeError(ctx, w, "VALIDATION_ERROR", "q is required", http.StatusBadRequest)
		return
	}

	limit := defaultSearchLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(ctx, w, "VALIDATION_ERROR", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxSearchLimit)
	}

	hits, err := h.searcher.Search(ctx, query, q.Get("source_id"), limit)
	if err != nil {
		slog.ErrorContext(ctx, "post search failed", "error", err)
		writeError(ctx, w, "INTERNAL_ERROR", "search failed", http.StatusInternalServerError)
		return
	}
	if hits == nil {
		hits = []SearchHit{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": hits}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
