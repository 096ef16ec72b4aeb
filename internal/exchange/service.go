package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"

	"giftrelay/internal/db"
	"giftrelay/internal/gifttask"
	"giftrelay/internal/ledger"
	"giftrelay/internal/logger"
	"giftrelay/internal/metrics"
)

var (
	ErrUnknownGift     = errors.New("unknown gift")
	ErrInvalidQuantity = errors.New("quantity out of range")
	ErrPriceMismatch   = errors.New("total cost does not match the catalog price")
	ErrMissingRoom     = errors.New("room id is required")
)

type Service struct {
	tx          db.Transactor
	ledger      ledger.Repository
	tasks       gifttask.Store
	catalog     *Catalog
	maxQuantity int
}

func NewService(tx db.Transactor, l ledger.Repository, tasks gifttask.Store, catalog *Catalog, maxQuantity int) *Service {
	if maxQuantity <= 0 {
		maxQuantity = 100
	}
	return &Service{tx: tx, ledger: l, tasks: tasks, catalog: catalog, maxQuantity: maxQuantity}
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

func (s *Service) MaxQuantity() int {
	return s.maxQuantity
}

// Exchange debits the gift's cost and enqueues its delivery task in one
// transaction. Repeating a call with the same idempotency key returns the
// original task without charging again.
func (s *Service) Exchange(ctx context.Context, req Request) (*Receipt, error) {
	if req.Quantity <= 0 || req.Quantity > s.maxQuantity {
		return nil, ErrInvalidQuantity
	}
	if req.RoomID == "" {
		return nil, ErrMissingRoom
	}
	if req.IdempotencyKey == "" {
		return nil, ledger.ErrMissingIdempotencyKey
	}

	gift, ok := s.catalog.Lookup(req.GiftID)
	if !ok {
		return nil, ErrUnknownGift
	}
	if gift.UnitCost > math.MaxInt64/int64(req.Quantity) {
		return nil, ErrInvalidQuantity
	}
	total := gift.UnitCost * int64(req.Quantity)
	if req.TotalCost != nil && *req.TotalCost != total {
		return nil, ErrPriceMismatch
	}

	var receipt *Receipt
	err := s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		receipt = nil

		res, err := s.ledger.Debit(ctx, tx, req.AccountID, total, req.IdempotencyKey)
		if err != nil {
			return err
		}

		if res.Replayed {
			task, err := s.tasks.GetByDebitTransaction(ctx, tx, res.Transaction.ID)
			if err != nil {
				return fmt.Errorf("find task for debit %d: %w", res.Transaction.ID, err)
			}
			if task.GiftID != req.GiftID || task.RoomID != req.RoomID || task.QuantityRequested != req.Quantity {
				return ledger.ErrIdempotencyMismatch
			}
			receipt = &Receipt{Task: task, TotalCost: total, BalanceAfter: res.BalanceAfter(), Replayed: true}
			return nil
		}

		task, err := s.tasks.Create(ctx, tx, gifttask.NewTask{
			AccountID:          req.AccountID,
			GiftID:             gift.ID,
			GiftName:           gift.Name,
			RoomID:             req.RoomID,
			Quantity:           req.Quantity,
			UnitCost:           gift.UnitCost,
			DebitTransactionID: res.Transaction.ID,
		})
		if err != nil {
			return err
		}
		receipt = &Receipt{Task: task, TotalCost: total, BalanceAfter: res.BalanceAfter()}
		return nil
	})
	if err != nil {
		metrics.RecordExchange(outcomeLabel(err))
		if errors.Is(err, ledger.ErrAccountNotFound) {
			// an account row only exists once coins have been granted
			return nil, ledger.ErrInsufficientFunds
		}
		return nil, err
	}

	if receipt.Replayed {
		metrics.RecordExchange("replayed")
		logger.Info("exchange replayed", "account_id", req.AccountID, "task_id", receipt.Task.ID)
	} else {
		metrics.RecordExchange("created")
		metrics.RecordTransition("", string(gifttask.StatusPending))
		logger.Info("exchange accepted",
			"account_id", req.AccountID,
			"task_id", receipt.Task.ID,
			"gift_id", gift.ID,
			"quantity", req.Quantity,
			"total_cost", total,
			"balance_after", receipt.BalanceAfter,
		)
	}
	return receipt, nil
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrAccountNotFound):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrIdempotencyMismatch):
		return "idempotency_mismatch"
	default:
		return "error"
	}
}
