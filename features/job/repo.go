package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"sourcefetch/internal/store"
)

type Repository interface {
	Save(ctx context.Context, job *Job) error
	List(ctx context.Context) ([]Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db store.DBTX
}

func NewPostgresRepo(db store.DBTX) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, job *Job) error {
	payload := job.Payload
	if !json.Valid(payload) {
		// Malformed messages are dead-lettered too; keep the raw bytes as a JSON string.
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return err
		}
		payload = quoted
	}
	query := `INSERT INTO failed_jobs (source_id, handler, topic, payload, error, attempts) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, job.SourceID, job.Handler, job.Topic, []byte(payload), job.Error, job.Attempts).
		Scan(&job.ID, &job.CreatedAt)
}

const jobColumns = `id, source_id, handler, topic, payload, error, attempts, created_at`

func scanJob(row interface{ Scan(...any) error }) (Job, error) {
	var j Job
	var payload []byte
	if err := row.Scan(&j.ID, &j.SourceID, &j.Handler, &j.Topic, &payload, &j.Error, &j.Attempts, &j.CreatedAt); err != nil {
		return j, err
	}
	j.Payload = json.RawMessage(payload)
	return j, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM failed_jobs ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM failed_jobs WHERE id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE id = $1`, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_jobs`).Scan(&count)
	return count, err
}
