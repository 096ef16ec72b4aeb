// Package ledgermock provides a testify mock of ledger.Repository for
// packages that settle through the ledger.
package ledgermock

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"giftrelay/internal/ledger"
)

type Repository struct{ mock.Mock }

var _ ledger.Repository = (*Repository)(nil)

func (m *Repository) Debit(ctx context.Context, tx *sqlx.Tx, accountID, amount int64, key string) (*ledger.Result, error) {
	args := m.Called(ctx, tx, accountID, amount, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Result), args.Error(1)
}

func (m *Repository) Credit(ctx context.Context, tx *sqlx.Tx, accountID, amount int64, kind ledger.Kind, taskID *int64) (*ledger.Transaction, error) {
	args := m.Called(ctx, tx, accountID, amount, kind, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *Repository) Grant(ctx context.Context, accountID, amount int64, key string) (*ledger.Result, error) {
	args := m.Called(ctx, accountID, amount, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Result), args.Error(1)
}

func (m *Repository) GetAccount(ctx context.Context, accountID int64) (*ledger.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Account), args.Error(1)
}

func (m *Repository) GetTransactions(ctx context.Context, accountID int64, limit, offset int) ([]ledger.Transaction, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Transaction), args.Error(1)
}

func (m *Repository) Audit(ctx context.Context, accountID int64) (*ledger.Audit, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Audit), args.Error(1)
}
