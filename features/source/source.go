package source

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sourcefetch/internal/config"
	"sourcefetch/internal/middleware"
	"sourcefetch/internal/pipeline"
)

var ErrNotFound = errors.New("source not found")

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusPaused  Status = "PAUSED"
	StatusErrored Status = "ERRORED"
)

// FetchConfig is the opaque per-source collector configuration, stored as JSONB.
type FetchConfig map[string]string

func (c FetchConfig) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

func (c *FetchConfig) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*c = FetchConfig{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("fetch config: unsupported type %T", src)
	}
	m := FetchConfig{}
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("fetch config: %w", err)
	}
	*c = m
	return nil
}

// Clone returns a copy safe to hand to another stage.
func (c FetchConfig) Clone() map[string]string {
	out := make(map[string]string, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

type LastError struct {
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	At        time.Time `json:"at"`
}

type Source struct {
	ID              string                 `json:"id"`
	Platform        pipeline.Platform      `json:"platform"`
	CollectorType   pipeline.CollectorType `json:"collector_type"`
	Name            string                 `json:"name"`
	URL             string                 `json:"url"`
	Cursor          string                 `json:"cursor"`
	LastFetchedAt   *time.Time             `json:"last_fetched_at,omitempty"`
	LastError       *LastError             `json:"last_error,omitempty"`
	Status          Status                 `json:"status"`
	FetchConfig     FetchConfig            `json:"fetch_config"`
	ActiveFollowers int                    `json:"active_followers"`
	ErrorStreak     int                    `json:"error_streak"`
	ErrorScore      float64                `json:"-"`
	LastPostCount   int                    `json:"last_post_count"`
	Version         int64                  `json:"-"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// Metadata is the part of a Source owned by the result ingestor.
type Metadata struct {
	Cursor        string
	LastFetchedAt *time.Time
	Status        Status
	LastError     *LastError
	ErrorStreak   int
	ErrorScore    float64
	LastPostCount int
}

func (s *Source) Metadata() Metadata {
	return Metadata{
		Cursor:        s.Cursor,
		LastFetchedAt: s.LastFetchedAt,
		Status:        s.Status,
		LastError:     s.LastError,
		ErrorStreak:   s.ErrorStreak,
		ErrorScore:    s.ErrorScore,
		LastPostCount: s.LastPostCount,
	}
}

type Repository interface {
	Get(ctx context.Context, id string) (*Source, error)
	ListEligible(ctx context.Context, erroredBefore time.Time) ([]Source, error)
	UpdateMetadata(ctx context.Context, id string, expectedVersion int64, m Metadata) error
	Save(ctx context.Context, src *Source) error
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	pub  EventPublisher
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub}
}

func (s *Service) Get(ctx context.Context, id string) (*Source, error) {
	return s.repo.Get(ctx, id)
}

// TriggerFetch enqueues an orchestration for one source on behalf of a user,
// bypassing the priority calculator. Paused sources are still enqueued; the
// orchestrator drops them.
func (s *Service) TriggerFetch(ctx context.Context, id, userID, reason string) (*pipeline.OrchestratorJob, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}

	job := &pipeline.OrchestratorJob{
		ID:          uuid.New().String(),
		SourceID:    id,
		ScheduledBy: pipeline.ScheduledByUser,
		Metadata: pipeline.OrchestratorMetadata{
			UserID: userID,
			Reason: reason,
		},
		CorrelationID: middleware.GetCorrelationID(ctx),
		CreatedAt:     time.Now().UTC(),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if err := s.pub.Publish(config.TopicOrchestrate, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish manual fetch", "error", err, "source_id", id)
		return nil, err
	}

	slog.InfoContext(ctx, "manual fetch enqueued", "source_id", id, "job_id", job.ID, "user_id", userID)
	return job, nil
}
