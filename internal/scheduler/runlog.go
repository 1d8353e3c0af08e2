package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sourcefetch/internal/store"
)

// RunLog records when a named task last ran anywhere in the fleet. Callers
// must serialize Claim for a name, e.g. under a lease.
type RunLog struct {
	db store.DBTX
}

func NewRunLog(db store.DBTX) *RunLog {
	return &RunLog{db: db}
}

// Claim reports whether name is due at now and, if so, records now as its
// last run. A run counts as recent when it started within interval less a
// tenth, so processes whose tickers drift slightly still alternate.
func (l *RunLog) Claim(ctx context.Context, name string, interval time.Duration, now time.Time) (bool, error) {
	var last time.Time
	err := l.db.QueryRowContext(ctx, `SELECT last_run_at FROM scheduler_runs WHERE name = $1`, name).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, err
	case now.Sub(last) < interval-interval/10:
		return false, nil
	}

	_, err = l.db.ExecContext(ctx, `INSERT INTO scheduler_runs (name, last_run_at) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET last_run_at = EXCLUDED.last_run_at`, name, now)
	if err != nil {
		return false, err
	}
	return true, nil
}
