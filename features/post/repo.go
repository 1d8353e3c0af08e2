package post

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"sourcefetch/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepo struct {
	db store.DBTX
}

func NewPostgresRepo(db store.DBTX) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// ExistingExternalIDs reports which of externalIDs are already stored for sourceID.
func (r *PostgresRepo) ExistingExternalIDs(ctx context.Context, sourceID string, externalIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(externalIDs) == 0 {
		return result, nil
	}

	query := `SELECT external_id FROM raw_posts WHERE source_id = $1 AND external_id = ANY($2)`
	rows, err := r.db.QueryContext(ctx, query, sourceID, pq.StringArray(externalIDs))
	if err != nil {
		return nil, fmt.Errorf("query existing posts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan external id: %w", err)
		}
		result[id] = true
	}
	return result, rows.Err()
}

// SaveMany inserts posts in one statement. Rows that collide on
// (source_id, external_id) are skipped; only inserted rows are returned.
func (r *PostgresRepo) SaveMany(ctx context.Context, posts []RawPost) ([]RawPost, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	byExternal := make(map[string]RawPost, len(posts))
	ins := psql.Insert("raw_posts").
		Columns("source_id", "external_id", "title", "content", "published_at", "fetched_at")
	for _, p := range posts {
		ins = ins.Values(p.SourceID, p.ExternalID, p.Title, p.Content, p.PublishedAt, p.FetchedAt)
		byExternal[p.ExternalID] = p
	}
	query, args, err := ins.
		Suffix("ON CONFLICT (source_id, external_id) DO NOTHING RETURNING id, external_id, created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert posts: %w", err)
	}
	defer rows.Close()

	var saved []RawPost
	for rows.Next() {
		var id, externalID string
		var p RawPost
		if err := rows.Scan(&id, &externalID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inserted post: %w", err)
		}
		createdAt := p.CreatedAt
		p = byExternal[externalID]
		p.ID = id
		p.CreatedAt = createdAt
		saved = append(saved, p)
	}
	return saved, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_posts`).Scan(&count)
	return count, err
}
