package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"sourcefetch/features/job"
	"sourcefetch/features/post"
	"sourcefetch/features/source"
	"sourcefetch/features/stats"
	"sourcefetch/internal/collector"
	"sourcefetch/internal/config"
	"sourcefetch/internal/ingest"
	"sourcefetch/internal/lease"
	"sourcefetch/internal/middleware"
	"sourcefetch/internal/orchestrator"
	"sourcefetch/internal/pipeline"
	"sourcefetch/internal/priority"
	"sourcefetch/internal/queue"
	"sourcefetch/internal/scheduler"
	"sourcefetch/internal/settings"
)

// PostIndex is the optional search index new posts are pushed to.
type PostIndex interface {
	ingest.PostIndexer
	post.Searcher
	stats.PostIndex
}

type App struct {
	Handler      http.Handler
	Calculator   *priority.Calculator
	Orchestrator *orchestrator.Orchestrator
	Ingestor     *ingest.Ingestor
	Jobs         *job.Service
	Consumers    []*queue.Consumer

	cfg   *config.Config
	lease *lease.AdvisoryLease
	runs  *scheduler.RunLog
}

const priorityTask = "priority"

func New(
	cfg *config.Config,
	db *sql.DB,
	pub queue.Publisher,
	index PostIndex,
	pools map[pipeline.CollectorType]config.CollectorPool,
) (*App, error) {
	// Feature: Settings
	settingsService := settings.NewService(settings.NewPostgresRepo(db)).WithDefaults(settings.FromConfig(cfg))
	settingsHandler := settings.NewHandler(settingsService)

	// Feature: Source
	sourceRepo := source.NewPostgresRepo(db)
	sourceService := source.NewService(sourceRepo, pub)
	sourceHandler := source.NewHandler(sourceService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, pub)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	postRepo := post.NewPostgresRepo(db)
	statsHandler := stats.NewHandler(sourceRepo, postRepo, jobRepo)
	if index != nil {
		statsHandler.WithIndex(index)
	}

	a := &App{
		cfg:        cfg,
		Jobs:       jobService,
		Calculator: priority.NewCalculator(sourceRepo, pub, settingsService, priority.OptionsFromConfig(cfg)),
		lease:      lease.New(db, cfg.PriorityLeaseKey),
		runs:       scheduler.NewRunLog(db),
	}

	a.Orchestrator = orchestrator.New(sourceRepo, orchestrator.NewURLResolver(), pub, cfg.DefaultPageSize)
	a.Ingestor = ingest.New(ingest.NewPostgresStore(db), ingest.OptionsFromConfig(cfg))
	if index != nil {
		a.Ingestor.WithIndexer(index)
	}

	sink := &deadLetterSink{jobs: jobService}
	policy := queue.Policy{
		MaxAttempts: cfg.JobMaxAttempts,
		BackoffBase: cfg.JobBackoffBase,
		BackoffMax:  cfg.JobBackoffMax,
		Timeout:     cfg.JobTimeout,

		MaxMsgTimeout: cfg.NSQMaxMsgTimeout,
	}

	if cfg.EnableOrchestrator {
		a.Consumers = append(a.Consumers, queue.NewConsumer("orchestrator", config.TopicOrchestrate, config.ChannelOrchestrator,
			a.Orchestrator, policy, sink, cfg.OrchestratorPoolSize))
	}
	if cfg.EnableIngestor {
		a.Consumers = append(a.Consumers, queue.NewConsumer("ingestor", config.TopicResult, config.ChannelIngestor,
			a.Ingestor, policy, sink, cfg.IngestorPoolSize))
	}
	for _, name := range cfg.Collectors {
		c, err := newCollectorConsumer(cfg, name, pools, pub, policy, sink)
		if err != nil {
			return nil, err
		}
		a.Consumers = append(a.Consumers, c)
	}

	// Routes
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", middleware.HeaderCorrelationID, source.HeaderUserID},
	}))

	r.Get("/health", healthHandler(db))

	r.Group(func(r chi.Router) {
		r.Use(middleware.CorrelationID)

		r.Get("/sources/{id}", sourceHandler.Get)
		r.Post("/sources/{id}/fetch", sourceHandler.TriggerFetch)

		r.Get("/settings", settingsHandler.GetSettings)
		r.Put("/settings", settingsHandler.UpdateSettings)

		r.Get("/jobs/failed", jobHandler.List)
		r.Post("/jobs/{id}/retry", jobHandler.Retry)

		r.Get("/stats", statsHandler.GetStats)

		if index != nil {
			r.Get("/posts/search", post.NewSearchHandler(index).Search)
		}
	})

	a.Handler = r
	return a, nil
}

func newCollectorConsumer(
	cfg *config.Config,
	name string,
	pools map[pipeline.CollectorType]config.CollectorPool,
	pub queue.Publisher,
	policy queue.Policy,
	sink queue.DeadLetterSink,
) (*queue.Consumer, error) {
	ct, err := pipeline.ParseCollectorType(name)
	if err != nil {
		return nil, fmt.Errorf("%w: COLLECTORS: %v", config.ErrInvalid, err)
	}
	topic, err := config.CollectTopic(ct)
	if err != nil {
		return nil, err
	}
	pool, ok := pools[ct]
	if !ok {
		pool = config.DefaultCollectorPools()[ct]
	}

	coll, err := collector.New(ct, collector.Deps{
		HTTP:      &http.Client{Timeout: pool.Timeout},
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	w := collector.NewWorker(ct, coll, collector.NewHostLimiter(pool.RatePerSecond, pool.Burst), pub)

	if pool.Timeout > 0 {
		// Leave room for publishing the result after the fetch deadline.
		policy.Timeout = pool.Timeout + 10*time.Second
	}
	return queue.NewConsumer("collector."+string(ct), topic, config.ChannelCollector, w, policy, sink, pool.Concurrency), nil
}

// Run serves HTTP, consumes every enabled queue and ticks the priority
// calculator until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.EnableAPI {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
			Handler:           a.Handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("server starting", "port", a.cfg.ServerPort)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			slog.Info("shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	for _, c := range a.Consumers {
		g.Go(func() error {
			return c.Run(ctx, a.cfg.NSQLookupd, a.cfg.NSQDHost)
		})
	}

	if a.cfg.EnableScheduler {
		g.Go(func() error {
			scheduler.Every(ctx, a.cfg.PriorityTick, priorityTask, a.RunPriority)
			return nil
		})
	}

	return g.Wait()
}

// RunPriority runs one calculator pass if this process wins the fleet lease
// and no other process has run one within the current tick.
func (a *App) RunPriority(ctx context.Context) error {
	err := a.lease.Do(ctx, func(ctx context.Context) error {
		due, err := a.runs.Claim(ctx, priorityTask, a.cfg.PriorityTick, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("claim priority run: %w", err)
		}
		if !due {
			slog.DebugContext(ctx, "priority pass already ran this tick, skipping")
			return nil
		}
		_, err = a.Calculator.Run(ctx)
		return err
	})
	if errors.Is(err, lease.ErrLeaseHeld) {
		slog.DebugContext(ctx, "priority lease held elsewhere, skipping pass")
		return nil
	}
	return err
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "db": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// deadLetterSink stores exhausted jobs in failed_jobs.
type deadLetterSink struct {
	jobs *job.Service
}

func (s *deadLetterSink) Record(ctx context.Context, dl queue.DeadMessage) error {
	msg := "unknown error"
	if dl.Err != nil {
		msg = dl.Err.Error()
	}
	return s.jobs.Record(ctx, &job.Job{
		SourceID: dl.SourceID,
		Handler:  dl.Handler,
		Topic:    dl.Topic,
		Payload:  json.RawMessage(dl.Payload),
		Error:    msg,
		Attempts: dl.Attempts,
	})
}
