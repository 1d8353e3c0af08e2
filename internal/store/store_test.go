package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcefetch/internal/store"
)

func TestRunInTx_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sources").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.RunInTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE sources SET status = 'ACTIVE'")
		return err
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RollbackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = store.RunInTx(context.Background(), db, func(tx *sql.Tx) error {
		return store.ErrVersionConflict
	})
	assert.True(t, errors.Is(err, store.ErrVersionConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_BeginError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(assert.AnError)

	called := false
	err = store.RunInTx(context.Background(), db, func(tx *sql.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, called)
}
