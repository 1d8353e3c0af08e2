package priority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sourcefetch/features/source"
	"sourcefetch/internal/config"
	"sourcefetch/internal/middleware"
	"sourcefetch/internal/pipeline"
	"sourcefetch/internal/queue"
	"sourcefetch/internal/settings"
)

type SourceLister interface {
	ListEligible(ctx context.Context, erroredBefore time.Time) ([]source.Source, error)
}

// WeightsProvider supplies operator overrides. Nil means use the static weights.
type WeightsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Options struct {
	Weights         Weights
	Intervals       Intervals
	ErroredCooldown time.Duration
	SkipNotDue      bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Weights: Weights{
			Recency:           cfg.RecencyWeight,
			Follower:          cfg.FollowerWeight,
			Yield:             cfg.YieldWeight,
			ErrorDampening:    cfg.ErrorDampening,
			RecencySaturation: cfg.RecencySaturation,
		},
		Intervals: Intervals{
			Base: cfg.PriorityBaseInterval,
			Min:  cfg.PriorityMinInterval,
			Max:  cfg.PriorityMaxInterval,
		},
		ErroredCooldown: cfg.ErroredCooldown,
		SkipNotDue:      cfg.SkipNotDue,
	}
}

type RunStats struct {
	Considered int
	Enqueued   int
	Skipped    int
	Failed     int
}

type Calculator struct {
	sources  SourceLister
	pub      queue.Publisher
	settings WeightsProvider
	opts     Options
	now      func() time.Time
}

func NewCalculator(sources SourceLister, pub queue.Publisher, wp WeightsProvider, opts Options) *Calculator {
	return &Calculator{sources: sources, pub: pub, settings: wp, opts: opts, now: time.Now}
}

func (c *Calculator) weights(ctx context.Context) Weights {
	w := c.opts.Weights
	if c.settings == nil {
		return w
	}
	s, err := c.settings.Get(ctx)
	if errors.Is(err, settings.ErrNotSet) {
		return w
	}
	if err != nil || s == nil {
		slog.WarnContext(ctx, "priority settings unavailable, using configured weights", "error", err)
		return w
	}
	w.Recency = s.RecencyWeight
	w.Follower = s.FollowerWeight
	w.Yield = s.YieldWeight
	w.ErrorDampening = s.ErrorDampening
	if s.RecencySaturationSeconds > 0 {
		w.RecencySaturation = s.RecencySaturation()
	}
	return w
}

// Run scores every eligible source and enqueues one OrchestratorJob each. A
// failure on one source is logged and does not stop the run; only a failure
// to list sources fails the run.
func (c *Calculator) Run(ctx context.Context) (RunStats, error) {
	now := c.now()
	runID := uuid.New().String()
	ctx = middleware.WithCorrelationID(ctx, runID)

	sources, err := c.sources.ListEligible(ctx, now.Add(-c.opts.ErroredCooldown))
	if err != nil {
		return RunStats{}, fmt.Errorf("list eligible sources: %w", err)
	}

	w := c.weights(ctx)
	var stats RunStats
	for _, src := range sources {
		stats.Considered++
		enqueued, err := c.enqueue(ctx, src, w, now)
		switch {
		case err != nil:
			stats.Failed++
			slog.ErrorContext(ctx, "failed to enqueue source", "source_id", src.ID, "error", err)
		case enqueued:
			stats.Enqueued++
		default:
			stats.Skipped++
		}
	}

	slog.InfoContext(ctx, "priority run complete",
		"considered", stats.Considered, "enqueued", stats.Enqueued, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

func (c *Calculator) enqueue(ctx context.Context, src source.Source, w Weights, now time.Time) (enqueued bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic scoring source: %v", r)
		}
	}()

	if src.Status == source.StatusPaused {
		return false, nil
	}

	score := Score(src, w, now)
	interval := RepeatInterval(score, c.opts.Intervals)
	if c.opts.SkipNotDue && !Due(src, interval, now) {
		return false, nil
	}

	job := pipeline.OrchestratorJob{
		ID:          uuid.New().String(),
		SourceID:    src.ID,
		Priority:    score,
		ScheduledBy: pipeline.ScheduledByCron,
		Metadata: pipeline.OrchestratorMetadata{
			RepeatIntervalSeconds: int64(interval / time.Second),
		},
		CorrelationID: middleware.GetCorrelationID(ctx),
		CreatedAt:     now.UTC(),
	}
	if err := queue.PublishJSON(c.pub, config.TopicOrchestrate, job); err != nil {
		return false, err
	}
	slog.DebugContext(ctx, "source enqueued", "source_id", src.ID, "priority", score, "repeat_interval", interval)
	return true, nil
}
