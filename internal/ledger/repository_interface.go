package ledger

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Repository is the balance ledger. Debit and Credit run inside the caller's
// transaction so they can commit atomically with other writes.
type Repository interface {
	Debit(ctx context.Context, tx *sqlx.Tx, accountID, amount int64, idempotencyKey string) (*Result, error)
	Credit(ctx context.Context, tx *sqlx.Tx, accountID, amount int64, kind Kind, taskID *int64) (*Transaction, error)
	Grant(ctx context.Context, accountID, amount int64, idempotencyKey string) (*Result, error)

	GetAccount(ctx context.Context, accountID int64) (*Account, error)
	GetTransactions(ctx context.Context, accountID int64, limit, offset int) ([]Transaction, error)
	Audit(ctx context.Context, accountID int64) (*Audit, error)
}
