package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"sourcefetch/features/source"
	"sourcefetch/internal/config"
	"sourcefetch/internal/middleware"
	"sourcefetch/internal/pipeline"
	"sourcefetch/internal/queue"
)

type SourceGetter interface {
	Get(ctx context.Context, id string) (*source.Source, error)
}

// Orchestrator turns an OrchestratorJob into a CollectorJob on the queue of
// the source's collector family.
type Orchestrator struct {
	sources  SourceGetter
	resolver ExternalIDResolver
	pub      queue.Publisher
	pageSize int
	now      func() time.Time
}

func New(sources SourceGetter, resolver ExternalIDResolver, pub queue.Publisher, defaultPageSize int) *Orchestrator {
	return &Orchestrator{
		sources:  sources,
		resolver: resolver,
		pub:      pub,
		pageSize: defaultPageSize,
		now:      time.Now,
	}
}

func (o *Orchestrator) Handle(ctx context.Context, body []byte) error {
	var job pipeline.OrchestratorJob
	if err := pipeline.Decode(body, &job); err != nil {
		return queue.Fatal(fmt.Errorf("malformed orchestrator job: %w", err))
	}
	return o.Dispatch(ctx, job)
}

// Dispatch resolves the source and enqueues its collector job. A missing or
// paused source is dropped without error.
func (o *Orchestrator) Dispatch(ctx context.Context, job pipeline.OrchestratorJob) error {
	ctx = middleware.WithSourceID(ctx, job.SourceID)

	src, err := o.sources.Get(ctx, job.SourceID)
	if errors.Is(err, source.ErrNotFound) {
		slog.InfoContext(ctx, "source not found, dropping orchestrator job", "job_id", job.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load source: %w", err)
	}
	if src.Status == source.StatusPaused {
		slog.InfoContext(ctx, "source paused, dropping orchestrator job", "job_id", job.ID)
		return nil
	}

	topic, err := config.CollectTopic(src.CollectorType)
	if err != nil {
		return queue.Fatal(err)
	}

	externalID, err := o.resolver.Resolve(src)
	if err != nil {
		return queue.Fatal(err)
	}

	cj := pipeline.CollectorJob{
		ID:            uuid.New().String(),
		SourceID:      src.ID,
		Platform:      src.Platform,
		CollectorType: src.CollectorType,
		ExternalID:    externalID,
		URL:           src.URL,
		Cursor:        src.Cursor,
		Limit:         o.limit(src),
		Priority:      job.Priority,
		Metadata: pipeline.CollectorMetadata{
			OrchestratorJobID: job.ID,
			Timestamp:         o.now().UTC(),
			FetchConfig:       src.FetchConfig.Clone(),
		},
		CorrelationID: job.CorrelationID,
	}

	if err := queue.PublishJSON(o.pub, topic, cj); err != nil {
		return err
	}
	slog.InfoContext(ctx, "collector job dispatched", "job_id", job.ID, "collector_job_id", cj.ID, "topic", topic, "scheduled_by", job.ScheduledBy)
	return nil
}

func (o *Orchestrator) limit(src *source.Source) int {
	if v, ok := src.FetchConfig["page_size"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return o.pageSize
}
