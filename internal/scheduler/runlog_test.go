package scheduler_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcefetch/internal/scheduler"
)

func TestRunLog_Claim(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	selectQuery := regexp.QuoteMeta("SELECT last_run_at FROM scheduler_runs WHERE name = $1")
	upsertQuery := regexp.QuoteMeta("INSERT INTO scheduler_runs (name, last_run_at) VALUES ($1, $2)")

	t.Run("FirstRunIsDue", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(selectQuery).WithArgs("priority").WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(upsertQuery).WithArgs("priority", now).WillReturnResult(sqlmock.NewResult(0, 1))

		due, err := scheduler.NewRunLog(db).Claim(context.Background(), "priority", 5*time.Minute, now)
		require.NoError(t, err)
		assert.True(t, due)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RecentRunElsewhereSkips", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(selectQuery).WithArgs("priority").
			WillReturnRows(sqlmock.NewRows([]string{"last_run_at"}).AddRow(now.Add(-2 * time.Minute)))

		due, err := scheduler.NewRunLog(db).Claim(context.Background(), "priority", 5*time.Minute, now)
		require.NoError(t, err)
		assert.False(t, due)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SlightlyEarlyTickStillRuns", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(selectQuery).WithArgs("priority").
			WillReturnRows(sqlmock.NewRows([]string{"last_run_at"}).AddRow(now.Add(-4*time.Minute - 50*time.Second)))
		mock.ExpectExec(upsertQuery).WithArgs("priority", now).WillReturnResult(sqlmock.NewResult(0, 1))

		due, err := scheduler.NewRunLog(db).Claim(context.Background(), "priority", 5*time.Minute, now)
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("QueryError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(selectQuery).WillReturnError(errors.New("db down"))

		_, err = scheduler.NewRunLog(db).Claim(context.Background(), "priority", 5*time.Minute, now)
		assert.Error(t, err)
	})
}
