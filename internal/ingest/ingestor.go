// Package ingest persists collector results and advances source metadata.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sourcefetch/features/post"
	"sourcefetch/features/source"
	"sourcefetch/internal/config"
	"sourcefetch/internal/middleware"
	"sourcefetch/internal/pipeline"
	"sourcefetch/internal/queue"
	"sourcefetch/internal/store"
)

// ErrCASExhausted is returned when every metadata write lost a version race.
var ErrCASExhausted = errors.New("metadata update kept conflicting")

var errSourceGone = errors.New("source gone")

// PostIndexer receives newly stored posts after commit.
type PostIndexer interface {
	IndexPosts(ctx context.Context, posts []post.RawPost) error
}

type Options struct {
	ErrorThreshold       float64
	RetryableErrorWeight float64
	CASMaxRetries        int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ErrorThreshold:       cfg.ErrorThreshold,
		RetryableErrorWeight: cfg.RetryableErrorWeight,
		CASMaxRetries:        cfg.CASMaxRetries,
	}
}

func DefaultOptions() Options {
	return Options{ErrorThreshold: 5, RetryableErrorWeight: 0.5, CASMaxRetries: 5}
}

// Report summarizes one ingestion.
type Report struct {
	Received   int
	Inserted   int
	Duplicates int
	Dropped    bool
	Status     source.Status
	Attempts   int
}

type Ingestor struct {
	store   Store
	indexer PostIndexer
	opts    Options
	now     func() time.Time
}

func New(s Store, opts Options) *Ingestor {
	if opts.CASMaxRetries < 1 {
		opts.CASMaxRetries = 1
	}
	return &Ingestor{store: s, opts: opts, now: time.Now}
}

// WithIndexer attaches a best-effort post index.
func (i *Ingestor) WithIndexer(idx PostIndexer) *Ingestor {
	i.indexer = idx
	return i
}

func (i *Ingestor) Handle(ctx context.Context, body []byte) error {
	var r pipeline.ResultJob
	if err := pipeline.Decode(body, &r); err != nil {
		return queue.Fatal(fmt.Errorf("malformed result job: %w", err))
	}
	_, err := i.Ingest(ctx, r)
	return err
}

// Ingest applies one result in a single transaction. A version conflict on the
// source row reruns the whole transaction against fresh state.
func (i *Ingestor) Ingest(ctx context.Context, r pipeline.ResultJob) (Report, error) {
	ctx = middleware.WithSourceID(ctx, r.SourceID)

	var (
		rep      Report
		inserted []post.RawPost
	)
	for attempt := 1; attempt <= i.opts.CASMaxRetries; attempt++ {
		rep = Report{Attempts: attempt}
		inserted = nil

		err := i.store.InTx(ctx, func(tx Tx) error {
			var err error
			switch o := r.Outcome.(type) {
			case pipeline.Fetched:
				inserted, err = i.applyFetched(ctx, tx, r, o, &rep)
			case pipeline.Failure:
				err = i.applyFailure(ctx, tx, r.SourceID, o, &rep)
			default:
				err = queue.Fatal(fmt.Errorf("%w: missing outcome", pipeline.ErrMalformedResult))
			}
			return err
		})

		switch {
		case err == nil:
			i.index(ctx, inserted)
			slog.InfoContext(ctx, "result ingested", "result_id", r.ID, "status", r.Status(),
				"received", rep.Received, "inserted", rep.Inserted, "duplicates", rep.Duplicates, "source_status", rep.Status)
			return rep, nil
		case errors.Is(err, errSourceGone):
			slog.WarnContext(ctx, "dropping result for unknown source", "result_id", r.ID)
			rep.Dropped = true
			return rep, nil
		case errors.Is(err, store.ErrVersionConflict):
			slog.DebugContext(ctx, "source version conflict, retrying", "result_id", r.ID, "attempt", attempt)
			continue
		default:
			return rep, err
		}
	}
	return rep, fmt.Errorf("%w: source %s after %d attempts", ErrCASExhausted, r.SourceID, i.opts.CASMaxRetries)
}

func (i *Ingestor) applyFetched(ctx context.Context, tx Tx, r pipeline.ResultJob, f pipeline.Fetched, rep *Report) ([]post.RawPost, error) {
	src, err := loadSource(ctx, tx, r.SourceID)
	if err != nil {
		return nil, err
	}

	fetchedAt := r.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = i.now().UTC()
	}

	posts := make([]pipeline.FetchedPost, len(f.Posts))
	for n, p := range f.Posts {
		posts[n] = post.Clean(p)
	}

	rep.Received = len(posts)
	seen := make(map[string]bool, len(posts))
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if !seen[p.ExternalID] {
			seen[p.ExternalID] = true
			ids = append(ids, p.ExternalID)
		}
	}

	existing, err := tx.ExistingExternalIDs(ctx, src.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("existing posts: %w", err)
	}
	if existing == nil {
		existing = make(map[string]bool)
	}

	fresh := make([]post.RawPost, 0, len(ids))
	for _, p := range posts {
		if existing[p.ExternalID] {
			continue
		}
		existing[p.ExternalID] = true
		fresh = append(fresh, post.FromFetched(src.ID, p, fetchedAt))
	}

	saved, err := tx.SavePosts(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("save posts: %w", err)
	}
	rep.Inserted = len(saved)
	rep.Duplicates = rep.Received - rep.Inserted

	m := nextSuccessState(src.Metadata(), f.NextCursor, rep.Inserted, fetchedAt)
	rep.Status = m.Status
	if err := tx.UpdateMetadata(ctx, src.ID, src.Version, m); err != nil {
		return nil, err
	}
	return saved, nil
}

func (i *Ingestor) applyFailure(ctx context.Context, tx Tx, sourceID string, f pipeline.Failure, rep *Report) error {
	src, err := loadSource(ctx, tx, sourceID)
	if err != nil {
		return err
	}

	m := nextErrorState(src.Metadata(), f, i.opts, i.now().UTC())
	rep.Status = m.Status
	if m.Status == source.StatusErrored && src.Status != source.StatusErrored {
		slog.WarnContext(ctx, "source marked errored", "error_score", m.ErrorScore, "error_streak", m.ErrorStreak, "code", f.Code)
	}
	return tx.UpdateMetadata(ctx, src.ID, src.Version, m)
}

func loadSource(ctx context.Context, tx Tx, id string) (*source.Source, error) {
	src, err := tx.GetSource(ctx, id)
	if errors.Is(err, source.ErrNotFound) {
		return nil, errSourceGone
	}
	if err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}
	return src, nil
}

func (i *Ingestor) index(ctx context.Context, posts []post.RawPost) {
	if i.indexer == nil || len(posts) == 0 {
		return
	}
	if err := i.indexer.IndexPosts(ctx, posts); err != nil {
		slog.WarnContext(ctx, "post indexing failed", "error", err, "count", len(posts))
	}
}

// nextSuccessState clears error bookkeeping and advances the cursor. An empty
// next cursor keeps the previous one. PAUSED survives a late success.
func nextSuccessState(m source.Metadata, nextCursor string, inserted int, fetchedAt time.Time) source.Metadata {
	if nextCursor != "" {
		m.Cursor = nextCursor
	}
	t := fetchedAt
	m.LastFetchedAt = &t
	if m.Status != source.StatusPaused {
		m.Status = source.StatusActive
	}
	m.LastError = nil
	m.ErrorStreak = 0
	m.ErrorScore = 0
	m.LastPostCount = inserted
	return m
}

// nextErrorState records a failure. Retryable failures weigh less toward the
// ERRORED threshold. Cursor and fetch time are left alone.
func nextErrorState(m source.Metadata, f pipeline.Failure, opts Options, now time.Time) source.Metadata {
	weight := 1.0
	if f.Retryable {
		weight = opts.RetryableErrorWeight
	}
	m.ErrorStreak++
	m.ErrorScore += weight

	msg := f.Code
	if f.Message != "" {
		msg = f.Code + ": " + f.Message
	}
	m.LastError = &source.LastError{Message: msg, Retryable: f.Retryable, At: now}

	if m.Status != source.StatusPaused && m.ErrorScore >= opts.ErrorThreshold {
		m.Status = source.StatusErrored
	}
	return m
}
