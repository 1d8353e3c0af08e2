package pipeline

import (
	"time"
)

type OrchestratorMetadata struct {
	UserID string `json:"user_id,omitempty"`
	Reason string `json:"reason,omitempty"`
	// RepeatIntervalSeconds is the scheduling hint computed with the priority.
	RepeatIntervalSeconds int64 `json:"repeat_interval_seconds,omitempty"`
}

// OrchestratorJob asks the orchestrator to dispatch a fetch for one source.
type OrchestratorJob struct {
	ID            string               `json:"id" validate:"required"`
	SourceID      string               `json:"source_id" validate:"required"`
	Priority      float64              `json:"priority" validate:"gte=0"`
	ScheduledBy   ScheduledBy          `json:"scheduled_by" validate:"required,oneof=cron user webhook"`
	Metadata      OrchestratorMetadata `json:"metadata"`
	CorrelationID string               `json:"correlation_id,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

type CollectorMetadata struct {
	OrchestratorJobID string            `json:"orchestrator_job_id" validate:"required"`
	Timestamp         time.Time         `json:"timestamp"`
	FetchConfig       map[string]string `json:"fetch_config,omitempty"`
}

// CollectorJob is the enriched, immutable fetch request consumed by exactly one
// collector queue.
type CollectorJob struct {
	ID            string            `json:"id" validate:"required"`
	SourceID      string            `json:"source_id" validate:"required"`
	Platform      Platform          `json:"platform" validate:"required"`
	CollectorType CollectorType     `json:"collector_type" validate:"required"`
	ExternalID    string            `json:"external_id" validate:"required"`
	URL           string            `json:"url" validate:"required"`
	Cursor        string            `json:"cursor,omitempty"`
	Limit         int               `json:"limit,omitempty" validate:"gte=0"`
	Priority      float64           `json:"priority"`
	Metadata      CollectorMetadata `json:"metadata"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

type Author struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Handle string `json:"handle,omitempty"`
	URL    string `json:"url,omitempty"`
}

type Engagement struct {
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`
	Comments int64 `json:"comments"`
	Views    int64 `json:"views"`
}

// FetchedPost is a normalized upstream item. ExternalID is unique per source.
type FetchedPost struct {
	ExternalID  string      `json:"external_id" validate:"required"`
	Title       string      `json:"title,omitempty"`
	URL         string      `json:"url,omitempty"`
	Content     string      `json:"content"`
	MediaURLs   []string    `json:"media_urls"`
	PublishedAt time.Time   `json:"published_at"`
	Author      Author      `json:"author"`
	Engagement  *Engagement `json:"engagement,omitempty"`
}
