// Package gifttaskmock provides a testify mock of gifttask.Store.
package gifttaskmock

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"giftrelay/internal/gifttask"
)

type Store struct{ mock.Mock }

var _ gifttask.Store = (*Store)(nil)

func (m *Store) Create(ctx context.Context, tx *sqlx.Tx, t gifttask.NewTask) (*gifttask.Task, error) {
	args := m.Called(ctx, tx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gifttask.Task), args.Error(1)
}

func (m *Store) GetByDebitTransaction(ctx context.Context, tx *sqlx.Tx, id int64) (*gifttask.Task, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gifttask.Task), args.Error(1)
}

func (m *Store) Get(ctx context.Context, id int64) (*gifttask.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gifttask.Task), args.Error(1)
}

func (m *Store) ListPending(ctx context.Context, limit int) ([]gifttask.Summary, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gifttask.Summary), args.Error(1)
}

func (m *Store) ListByAccount(ctx context.Context, accountID int64, limit, offset int) ([]gifttask.Task, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gifttask.Task), args.Error(1)
}

func (m *Store) ClaimNext(ctx context.Context, agentID string) (*gifttask.Task, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gifttask.Task), args.Error(1)
}

func (m *Store) Claim(ctx context.Context, id int64, agentID string) (*gifttask.Task, error) {
	args := m.Called(ctx, id, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gifttask.Task), args.Error(1)
}

func (m *Store) Complete(ctx context.Context, id int64, delivered int) (*gifttask.Outcome, error) {
	args := m.Called(ctx, id, delivered)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gifttask.Outcome), args.Error(1)
}

func (m *Store) Fail(ctx context.Context, id int64, reason string) (*gifttask.Outcome, error) {
	args := m.Called(ctx, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gifttask.Outcome), args.Error(1)
}

func (m *Store) ReclaimStale(ctx context.Context, staleAfter time.Duration, maxAttempts, limit int) (*gifttask.ReclaimReport, error) {
	args := m.Called(ctx, staleAfter, maxAttempts, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gifttask.ReclaimReport), args.Error(1)
}

func (m *Store) ExpirePending(ctx context.Context, olderThan time.Duration, limit int) (*gifttask.ReclaimReport, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gifttask.ReclaimReport), args.Error(1)
}
