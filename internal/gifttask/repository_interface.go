package gifttask

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store owns gift task rows. Every status change goes through one of its
// transition methods.
type Store interface {
	Create(ctx context.Context, tx *sqlx.Tx, t NewTask) (*Task, error)
	GetByDebitTransaction(ctx context.Context, tx *sqlx.Tx, debitTransactionID int64) (*Task, error)

	Get(ctx context.Context, id int64) (*Task, error)
	ListPending(ctx context.Context, limit int) ([]Summary, error)
	ListByAccount(ctx context.Context, accountID int64, limit, offset int) ([]Task, error)

	ClaimNext(ctx context.Context, agentID string) (*Task, error)
	Claim(ctx context.Context, id int64, agentID string) (*Task, error)
	Complete(ctx context.Context, id int64, delivered int) (*Outcome, error)
	Fail(ctx context.Context, id int64, reason string) (*Outcome, error)

	ReclaimStale(ctx context.Context, staleAfter time.Duration, maxAttempts, limit int) (*ReclaimReport, error)
	ExpirePending(ctx context.Context, olderThan time.Duration, limit int) (*ReclaimReport, error)
}
