package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sourcefetch/internal/config"
	"sourcefetch/internal/middleware"
	"sourcefetch/internal/pipeline"
	"sourcefetch/internal/queue"
)

// Worker consumes CollectorJobs for one collector type and emits ResultJobs.
type Worker struct {
	ct        pipeline.CollectorType
	collector Collector
	limiter   *HostLimiter
	pub       queue.Publisher
	now       func() time.Time
}

func NewWorker(ct pipeline.CollectorType, c Collector, limiter *HostLimiter, pub queue.Publisher) *Worker {
	return &Worker{ct: ct, collector: c, limiter: limiter, pub: pub, now: time.Now}
}

func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var job pipeline.CollectorJob
	if err := pipeline.Decode(body, &job); err != nil {
		return queue.Fatal(fmt.Errorf("malformed collector job: %w", err))
	}
	if _, err := pipeline.ParseCollectorType(string(job.CollectorType)); err != nil {
		return queue.Fatal(err)
	}
	if job.CollectorType != w.ct {
		return queue.Fatal(fmt.Errorf("%s job delivered to %s worker", job.CollectorType, w.ct))
	}
	return w.Collect(ctx, job)
}

// Collect runs the fetch and reports the outcome. Infrastructure failures are
// returned so the queue retries the job; platform failures become error results.
func (w *Worker) Collect(ctx context.Context, job pipeline.CollectorJob) error {
	ctx = middleware.WithSourceID(ctx, job.SourceID)

	if w.limiter != nil {
		if err := w.limiter.WaitURL(ctx, job.URL); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := w.now()
	coll, err := w.collector.Collect(ctx, job)
	elapsed := w.now().Sub(start)

	var outcome pipeline.Outcome
	if err != nil {
		failure, ok := Classify(err)
		if !ok {
			return err
		}
		slog.WarnContext(ctx, "collector reported failure", "collector_job_id", job.ID, "code", failure.Code, "retryable", failure.Retryable, "error", err)
		outcome = failure
	} else {
		outcome = pipeline.Fetched{Posts: coll.Posts, NextCursor: coll.NextCursor, Partial: coll.Truncated}
	}

	result := pipeline.ResultJob{
		ID:             uuid.New().String(),
		SourceID:       job.SourceID,
		Platform:       job.Platform,
		Outcome:        outcome,
		ProcessingTime: elapsed,
		Metadata: pipeline.ResultMetadata{
			CollectorJobID:    job.ID,
			OrchestratorJobID: job.Metadata.OrchestratorJobID,
		},
		FetchedAt:     w.now().UTC(),
		CorrelationID: job.CorrelationID,
	}
	if err := queue.PublishJSON(w.pub, config.TopicResult, result); err != nil {
		return err
	}
	slog.InfoContext(ctx, "collection reported", "collector_job_id", job.ID, "status", result.Status(), "duration", elapsed)
	return nil
}
