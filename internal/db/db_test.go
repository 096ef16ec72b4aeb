package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRunner(t *testing.T, retries int) (*TxRunner, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { sqlxDB.Close() })

	return NewTxRunner(sqlxDB, retries), mock
}

func TestInTx_Commit(t *testing.T) {
	runner, mock := setupRunner(t, 0)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := runner.InTx(context.Background(), func(tx *sqlx.Tx) error {
		_, err := tx.Exec("UPDATE accounts SET balance = 1")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollbackOnError(t *testing.T) {
	runner, mock := setupRunner(t, 2)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := runner.InTx(context.Background(), func(tx *sqlx.Tx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RetriesSerializationFailure(t *testing.T) {
	runner, mock := setupRunner(t, 2)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := runner.InTx(context.Background(), func(tx *sqlx.Tx) error {
		calls++
		if calls == 1 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_GivesUpAfterMaxRetries(t *testing.T) {
	runner, mock := setupRunner(t, 1)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	calls := 0
	err := runner.InTx(context.Background(), func(tx *sqlx.Tx) error {
		calls++
		return &pq.Error{Code: "40P01"}
	})

	assert.True(t, IsRetryable(err))
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_SurvivesLongConflictStreak(t *testing.T) {
	runner, mock := setupRunner(t, 20)

	for i := 0; i < 19; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := runner.InTx(context.Background(), func(tx *sqlx.Tx) error {
		calls++
		if calls < 20 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 20, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryDelay_BoundedWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 30; attempt++ {
		base := min(time.Duration(attempt*attempt)*retryBaseDelay, retryMaxDelay)
		for i := 0; i < 20; i++ {
			d := retryDelay(attempt)
			assert.GreaterOrEqual(t, d, base)
			assert.LessOrEqual(t, d, 2*base)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsRetryable(&pq.Error{Code: "23503"}))
	assert.False(t, IsRetryable(errors.New("plain")))
}
