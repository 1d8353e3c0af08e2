package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"sourcefetch/features/source"
	"sourcefetch/internal/middleware"
)

type SourceRepo interface {
	CountByStatus(ctx context.Context) (map[source.Status]int, error)
}

type PostRepo interface {
	Count(ctx context.Context) (int, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

// PostIndex counts posts held by the search index.
type PostIndex interface {
	CountPosts(ctx context.Context) (int, error)
}

type Handler struct {
	sourceRepo SourceRepo
	postRepo   PostRepo
	jobRepo    JobRepo
	index      PostIndex
}

func NewHandler(s SourceRepo, p PostRepo, j JobRepo) *Handler {
	return &Handler{sourceRepo: s, postRepo: p, jobRepo: j}
}

// WithIndex adds indexed_posts to the response.
func (h *Handler) WithIndex(idx PostIndex) *Handler {
	h.index = idx
	return h
}

type StatsResponse struct {
	Sources         int                   `json:"sources"`
	SourcesByStatus map[source.Status]int `json:"sources_by_status"`
	Posts           int                   `json:"posts"`
	FailedJobs      int                   `json:"failed_jobs"`
	IndexedPosts    *int                  `json:"indexed_posts,omitempty"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	byStatus, err := h.sourceRepo.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count sources", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count sources", http.StatusInternalServerError)
		return
	}

	pCount, err := h.postRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count posts", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count posts", http.StatusInternalServerError)
		return
	}

	jCount, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		SourcesByStatus: byStatus,
		Posts:           pCount,
		FailedJobs:      jCount,
	}
	for _, n := range byStatus {
		resp.Sources += n
	}

	if h.index != nil {
		// The index is best effort; an outage leaves the field out.
		if n, err := h.index.CountPosts(ctx); err != nil {
			slog.WarnContext(ctx, "failed to count indexed posts", "error", err)
		} else {
			resp.IndexedPosts = &n
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
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
