package ingest

import (
	"context"
	"database/sql"

	"sourcefetch/features/post"
	"sourcefetch/features/source"
	"sourcefetch/internal/store"
)

// Tx is the transactional view the ingestor works through.
type Tx interface {
	GetSource(ctx context.Context, id string) (*source.Source, error)
	ExistingExternalIDs(ctx context.Context, sourceID string, externalIDs []string) (map[string]bool, error)
	SavePosts(ctx context.Context, posts []post.RawPost) ([]post.RawPost, error)
	UpdateMetadata(ctx context.Context, id string, expectedVersion int64, m source.Metadata) error
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// PostgresStore runs each ingestion in one database transaction over the
// source and post repositories.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return store.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&pgTx{
			sources: source.NewPostgresRepo(tx),
			posts:   post.NewPostgresRepo(tx),
		})
	})
}

type pgTx struct {
	sources *source.PostgresRepo
	posts   *post.PostgresRepo
}

func (t *pgTx) GetSource(ctx context.Context, id string) (*source.Source, error) {
	return t.sources.Get(ctx, id)
}

func (t *pgTx) ExistingExternalIDs(ctx context.Context, sourceID string, externalIDs []string) (map[string]bool, error) {
	return t.posts.ExistingExternalIDs(ctx, sourceID, externalIDs)
}

func (t *pgTx) SavePosts(ctx context.Context, posts []post.RawPost) ([]post.RawPost, error) {
	return t.posts.SaveMany(ctx, posts)
}

func (t *pgTx) UpdateMetadata(ctx context.Context, id string, expectedVersion int64, m source.Metadata) error {
	return t.sources.UpdateMetadata(ctx, id, expectedVersion, m)
}
