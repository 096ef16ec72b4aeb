package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"giftrelay/internal/logger"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"

	retryBaseDelay = 5 * time.Millisecond
	retryMaxDelay  = 250 * time.Millisecond
)

func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

func RunMigrations(db *sqlx.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", absPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

type Transactor interface {
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// TxRunner runs fn inside a single database transaction, committing when fn
// returns nil and rolling back otherwise. Serialization failures, deadlocks
// and unique violations are retried up to MaxRetries times with a fresh
// transaction, so fn must not keep state across attempts.
type TxRunner struct {
	DB         *sqlx.DB
	Isolation  sql.IsolationLevel
	MaxRetries int
}

func NewTxRunner(db *sqlx.DB, maxRetries int) *TxRunner {
	return &TxRunner{DB: db, Isolation: sql.LevelSerializable, MaxRetries: maxRetries}
}

func (r *TxRunner) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("retrying transaction", "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay(attempt)):
			}
		}

		err = r.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}

// retryDelay grows quadratically up to retryMaxDelay and adds up to the same
// amount again at random, so writers contending on one row spread out instead
// of colliding on every round.
func retryDelay(attempt int) time.Duration {
	d := min(time.Duration(attempt*attempt)*retryBaseDelay, retryMaxDelay)
	return d + time.Duration(rand.Int63n(int64(d)+1))
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.DB.BeginTxx(ctx, &sql.TxOptions{Isolation: r.Isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// IsRetryable reports whether err is a transient conflict that a fresh
// transaction can resolve.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	// a concurrent insert of the same idempotency key; the retry finds it
	return IsUniqueViolation(err)
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
