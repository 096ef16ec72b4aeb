package ledger

import "time"

type Kind string

const (
	KindDebitExchange Kind = "debit_exchange"
	KindRefundFailed  Kind = "refund_failed"
	KindRefundPartial Kind = "refund_partial"
	KindGrant         Kind = "grant"
)

// Account holds a coin balance in the smallest unit. It is mutated only
// through this package.
type Account struct {
	ID        int64     `db:"id" json:"id"`
	Balance   int64     `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is one append-only ledger row.
type Transaction struct {
	ID             int64     `db:"id" json:"id"`
	AccountID      int64     `db:"account_id" json:"account_id"`
	Delta          int64     `db:"delta" json:"delta"`
	BalanceAfter   int64     `db:"balance_after" json:"balance_after"`
	Kind           Kind      `db:"kind" json:"kind"`
	IdempotencyKey *string   `db:"idempotency_key" json:"idempotency_key,omitempty"`
	TaskID         *int64    `db:"task_id" json:"task_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Result is what a keyed mutation returns. Replayed is set when the key had
// already been applied and Transaction is the original row.
type Result struct {
	Transaction *Transaction `json:"transaction"`
	Replayed    bool         `json:"replayed"`
}

func (r *Result) BalanceAfter() int64 {
	return r.Transaction.BalanceAfter
}

type Audit struct {
	AccountID  int64 `db:"account_id" json:"account_id"`
	Balance    int64 `db:"balance" json:"balance"`
	LedgerSum  int64 `db:"ledger_sum" json:"ledger_sum"`
	Entries    int64 `db:"entries" json:"entries"`
	Consistent bool  `db:"-" json:"consistent"`
}

type GrantRequest struct {
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" validate:"required,min=8,max=128,printascii"`
}

type BalanceResponse struct {
	AccountID int64 `json:"account_id"`
	Balance   int64 `json:"balance"`
}

type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
	Limit        int           `json:"limit"`
	Offset       int           `json:"offset"`
}
