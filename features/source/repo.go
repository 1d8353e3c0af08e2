package source

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"sourcefetch/internal/store"
)

const sourceColumns = `id, platform, collector_type, name, url, cursor, last_fetched_at, last_error_message, last_error_retryable, last_error_at, status, fetch_config, active_followers, error_streak, error_score, last_post_count, version, created_at, updated_at`

type PostgresRepo struct {
	db store.DBTX
}

func NewPostgresRepo(db store.DBTX) *PostgresRepo {
	return &PostgresRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*Source, error) {
	var (
		s             Source
		lastFetchedAt sql.NullTime
		errMessage    sql.NullString
		errRetryable  sql.NullBool
		errAt         sql.NullTime
	)
	err := row.Scan(&s.ID, &s.Platform, &s.CollectorType, &s.Name, &s.URL, &s.Cursor, &lastFetchedAt,
		&errMessage, &errRetryable, &errAt, &s.Status, &s.FetchConfig, &s.ActiveFollowers,
		&s.ErrorStreak, &s.ErrorScore, &s.LastPostCount, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastFetchedAt.Valid {
		t := lastFetchedAt.Time
		s.LastFetchedAt = &t
	}
	if errMessage.Valid {
		s.LastError = &LastError{Message: errMessage.String, Retryable: errRetryable.Bool, At: errAt.Time}
	}
	return &s, nil
}

// Get returns ErrNotFound for ids that are not UUIDs, since no row can have one.
func (r *PostgresRepo) Get(ctx context.Context, id string) (*Source, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1 AND deleted_at IS NULL`
	s, err := scanSource(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListEligible returns ACTIVE sources and ERRORED sources whose last error is
// older than erroredBefore. PAUSED sources are never returned.
func (r *PostgresRepo) ListEligible(ctx context.Context, erroredBefore time.Time) ([]Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE deleted_at IS NULL AND (status = 'ACTIVE' OR (status = 'ERRORED' AND (last_error_at IS NULL OR last_error_at <= $1))) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, erroredBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *s)
	}
	return sources, rows.Err()
}

// UpdateMetadata writes cursor, status and error bookkeeping only if the row is
// still at expectedVersion, bumping the version on success.
func (r *PostgresRepo) UpdateMetadata(ctx context.Context, id string, expectedVersion int64, m Metadata) error {
	var (
		errMessage   sql.NullString
		errRetryable sql.NullBool
		errAt        sql.NullTime
		fetchedAt    sql.NullTime
	)
	if m.LastError != nil {
		errMessage = sql.NullString{String: m.LastError.Message, Valid: true}
		errRetryable = sql.NullBool{Bool: m.LastError.Retryable, Valid: true}
		errAt = sql.NullTime{Time: m.LastError.At, Valid: true}
	}
	if m.LastFetchedAt != nil {
		fetchedAt = sql.NullTime{Time: *m.LastFetchedAt, Valid: true}
	}

	query := `UPDATE sources SET cursor = $1, last_fetched_at = $2, status = $3, last_error_message = $4, last_error_retryable = $5, last_error_at = $6, error_streak = $7, error_score = $8, last_post_count = $9, version = version + 1, updated_at = NOW() WHERE id = $10 AND version = $11`
	res, err := r.db.ExecContext(ctx, query, m.Cursor, fetchedAt, m.Status, errMessage, errRetryable, errAt,
		m.ErrorStreak, m.ErrorScore, m.LastPostCount, id, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrVersionConflict
	}
	return nil
}

func (r *PostgresRepo) Save(ctx context.Context, src *Source) error {
	if src.Status == "" {
		src.Status = StatusActive
	}
	query := `INSERT INTO sources (platform, collector_type, name, url, status, fetch_config, active_followers) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, version, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, src.Platform, src.CollectorType, src.Name, src.URL, src.Status, src.FetchConfig, src.ActiveFollowers).
		Scan(&src.ID, &src.Version, &src.CreatedAt, &src.UpdatedAt)
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM sources WHERE deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) FROM sources WHERE deleted_at IS NULL GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int{StatusActive: 0, StatusPaused: 0, StatusErrored: 0}
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
