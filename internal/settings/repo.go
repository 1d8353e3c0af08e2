package settings

import (
	"context"
	"database/sql"
	"errors"

	"sourcefetch/internal/store"
)

type PostgresRepo struct {
	db store.DBTX
}

func NewPostgresRepo(db store.DBTX) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, recency_weight, follower_weight, yield_weight, error_dampening, recency_saturation_seconds FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.RecencyWeight, &s.FollowerWeight, &s.YieldWeight, &s.ErrorDampening, &s.RecencySaturationSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotSet
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		INSERT INTO settings (id, recency_weight, follower_weight, yield_weight, error_dampening, recency_saturation_seconds)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET recency_weight = $1, follower_weight = $2, yield_weight = $3, error_dampening = $4, recency_saturation_seconds = $5, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, s.RecencyWeight, s.FollowerWeight, s.YieldWeight, s.ErrorDampening, s.RecencySaturationSeconds)
	return err
}
