package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"giftrelay/internal/db"
	"giftrelay/internal/logger"
	"giftrelay/internal/metrics"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrAccountNotFound       = errors.New("account not found")
	ErrInvalidAmount         = errors.New("amount must be a positive integer")
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrIdempotencyMismatch   = errors.New("idempotency key reused with a different request")
)

const transactionColumns = `id, account_id, delta, balance_after, kind, idempotency_key, task_id, created_at`

type repository struct {
	db *sqlx.DB
	tx db.Transactor
}

func NewRepository(database *sqlx.DB, tx db.Transactor) Repository {
	return &repository{db: database, tx: tx}
}

// Debit removes amount from the account. The account row is locked first so
// concurrent debits serialize; a key that was already applied returns the
// original row without touching the balance.
func (r *repository) Debit(ctx context.Context, tx *sqlx.Tx, accountID, amount int64, idempotencyKey string) (*Result, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if idempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}

	acct, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	prev, err := findByKey(ctx, tx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if prev.AccountID != accountID || prev.Kind != KindDebitExchange || prev.Delta != -amount {
			return nil, ErrIdempotencyMismatch
		}
		return &Result{Transaction: prev, Replayed: true}, nil
	}

	if acct.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	t, err := apply(ctx, tx, acct, -amount, KindDebitExchange, &idempotencyKey, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Transaction: t}, nil
}

// Credit adds amount to the account. Refunds carry no idempotency key; the
// task state machine calls this at most once per task and the
// task_id unique index backs that up.
func (r *repository) Credit(ctx context.Context, tx *sqlx.Tx, accountID, amount int64, kind Kind, taskID *int64) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	acct, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	return apply(ctx, tx, acct, amount, kind, nil, taskID)
}

// Grant credits coins from outside the gift flow, creating the account on
// first use.
func (r *repository) Grant(ctx context.Context, accountID, amount int64, idempotencyKey string) (*Result, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if idempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}

	var res *Result
	err := r.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		res = nil
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
			accountID,
		); err != nil {
			return err
		}

		acct, err := lockAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		prev, err := findByKey(ctx, tx, idempotencyKey)
		if err != nil {
			return err
		}
		if prev != nil {
			if prev.AccountID != accountID || prev.Kind != KindGrant || prev.Delta != amount {
				return ErrIdempotencyMismatch
			}
			res = &Result{Transaction: prev, Replayed: true}
			return nil
		}

		t, err := apply(ctx, tx, acct, amount, KindGrant, &idempotencyKey, nil)
		if err != nil {
			return err
		}
		res = &Result{Transaction: t}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *repository) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	acct := &Account{}
	err := r.db.GetContext(ctx, acct,
		`SELECT id, balance, created_at, updated_at FROM accounts WHERE id = $1`,
		accountID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (r *repository) GetTransactions(ctx context.Context, accountID int64, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	txs := []Transaction{}
	err := r.db.SelectContext(ctx, &txs, `
		SELECT `+transactionColumns+`
		FROM balance_transactions
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// Audit compares the stored balance with the sum of the account's ledger rows.
func (r *repository) Audit(ctx context.Context, accountID int64) (*Audit, error) {
	a := &Audit{}
	err := r.db.GetContext(ctx, a, `
		SELECT a.id AS account_id, a.balance,
		       COALESCE(SUM(t.delta), 0) AS ledger_sum,
		       COUNT(t.id) AS entries
		FROM accounts a
		LEFT JOIN balance_transactions t ON t.account_id = a.id
		WHERE a.id = $1
		GROUP BY a.id, a.balance
	`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Consistent = a.Balance == a.LedgerSum
	return a, nil
}

func lockAccount(ctx context.Context, tx *sqlx.Tx, accountID int64) (*Account, error) {
	acct := &Account{}
	err := tx.QueryRowxContext(ctx,
		`SELECT id, balance, created_at, updated_at
		 FROM accounts
		 WHERE id = $1
		 FOR UPDATE`,
		accountID,
	).StructScan(acct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock account %d: %w", accountID, err)
	}
	return acct, nil
}

func findByKey(ctx context.Context, tx *sqlx.Tx, key string) (*Transaction, error) {
	t := &Transaction{}
	err := tx.QueryRowxContext(ctx,
		`SELECT `+transactionColumns+` FROM balance_transactions WHERE idempotency_key = $1`,
		key,
	).StructScan(t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	return t, nil
}

// apply writes the new balance and its ledger row. acct must be locked by tx.
func apply(ctx context.Context, tx *sqlx.Tx, acct *Account, delta int64, kind Kind, key *string, taskID *int64) (*Transaction, error) {
	newBalance := acct.Balance + delta
	if newBalance < 0 {
		return nil, ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts
		 SET balance = $1, updated_at = NOW()
		 WHERE id = $2`,
		newBalance, acct.ID,
	); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	t := &Transaction{}
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO balance_transactions (account_id, delta, balance_after, kind, idempotency_key, task_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+transactionColumns,
		acct.ID, delta, newBalance, kind, key, taskID,
	).StructScan(t)
	if err != nil {
		return nil, fmt.Errorf("insert ledger row: %w", err)
	}

	acct.Balance = newBalance
	metrics.RecordLedgerEntry(string(kind), delta)
	logger.Debug("ledger entry",
		"account_id", acct.ID,
		"kind", kind,
		"delta", delta,
		"balance_after", newBalance,
	)
	return t, nil
}
