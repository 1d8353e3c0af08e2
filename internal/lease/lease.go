package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
)

// ErrLeaseHeld signals another process currently owns the lease.
var ErrLeaseHeld = errors.New("lease already held")

// AdvisoryLease is a fleet-wide mutual exclusion on a named job, backed by a
// Postgres session-level advisory lock. The lock is held on one pooled
// connection for the duration of the work and released with it, so a crashed
// holder frees the lease when its session ends.
type AdvisoryLease struct {
	db  *sql.DB
	key string
	id  int64
}

func New(db *sql.DB, key string) *AdvisoryLease {
	return &AdvisoryLease{db: db, key: key, id: KeyID(key)}
}

// KeyID maps a lease name onto the bigint space of pg advisory locks.
func KeyID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// Do runs fn only if the lease can be taken right now. It returns ErrLeaseHeld
// without waiting when another holder exists.
func (l *AdvisoryLease) Do(ctx context.Context, fn func(context.Context) error) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("lease %s: acquire conn: %w", l.key, err)
	}
	defer conn.Close()

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.id).Scan(&acquired); err != nil {
		return fmt.Errorf("lease %s: try lock: %w", l.key, err)
	}
	if !acquired {
		return ErrLeaseHeld
	}
	defer func() {
		// Unlock on a fresh context; ctx may already be cancelled.
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, l.id); err != nil {
			slog.Warn("failed to release lease", "key", l.key, "error", err)
		}
	}()

	return fn(ctx)
}
