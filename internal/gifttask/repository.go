package gifttask

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"giftrelay/internal/db"
	"giftrelay/internal/ledger"
	"giftrelay/internal/logger"
	"giftrelay/internal/metrics"
)

var (
	ErrTaskNotFound      = errors.New("gift task not found")
	ErrNoPendingTask     = errors.New("no pending gift task")
	ErrAlreadyClaimed    = errors.New("gift task already claimed")
	ErrInvalidTransition = errors.New("gift task is not claimed")
	ErrInvalidQuantity   = errors.New("delivered quantity must not be negative")
	ErrInvalidTask       = errors.New("gift task needs a positive quantity and unit cost")
)

const (
	taskColumns = `id, account_id, gift_id, gift_name, room_id, quantity_requested, quantity_delivered,
		unit_cost, refund_amount, status, claimed_at, claimed_by, attempt_count, last_error,
		debit_transaction_id, created_at, updated_at`

	reasonZeroDelivered = "delivery agent reported zero units delivered"
	reasonExpired       = "no delivery agent claimed the task in time"

	maxListLimit = 100
)

type repository struct {
	db     *sqlx.DB
	tx     db.Transactor
	ledger ledger.Repository
}

// NewRepository returns the Postgres-backed Store. Refunds are written through
// ledger inside the same transaction as the status change.
func NewRepository(database *sqlx.DB, tx db.Transactor, l ledger.Repository) Store {
	return &repository{db: database, tx: tx, ledger: l}
}

func (r *repository) Create(ctx context.Context, tx *sqlx.Tx, nt NewTask) (*Task, error) {
	if nt.Quantity <= 0 || nt.UnitCost <= 0 {
		return nil, ErrInvalidTask
	}

	t := &Task{}
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO gift_tasks (account_id, gift_id, gift_name, room_id, quantity_requested, unit_cost, debit_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+taskColumns,
		nt.AccountID, nt.GiftID, nt.GiftName, nt.RoomID, nt.Quantity, nt.UnitCost, nt.DebitTransactionID,
	).StructScan(t)
	if err != nil {
		return nil, fmt.Errorf("insert gift task: %w", err)
	}
	return t, nil
}

func (r *repository) GetByDebitTransaction(ctx context.Context, tx *sqlx.Tx, debitTransactionID int64) (*Task, error) {
	t := &Task{}
	err := tx.QueryRowxContext(ctx,
		`SELECT `+taskColumns+` FROM gift_tasks WHERE debit_transaction_id = $1`,
		debitTransactionID,
	).StructScan(t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Task, error) {
	t := &Task{}
	err := r.db.GetContext(ctx, t, `SELECT `+taskColumns+` FROM gift_tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *repository) ListPending(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = 20
	}

	tasks := []Summary{}
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT id, gift_id, gift_name, room_id, quantity_requested, attempt_count, created_at
		FROM gift_tasks
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID int64, limit, offset int) ([]Task, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	tasks := []Task{}
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT `+taskColumns+`
		FROM gift_tasks
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// ClaimNext hands the oldest pending task to agentID. Rows locked by a
// concurrent claimer are skipped rather than waited on.
func (r *repository) ClaimNext(ctx context.Context, agentID string) (*Task, error) {
	t := &Task{}
	err := r.db.QueryRowxContext(ctx, `
		UPDATE gift_tasks
		SET status = 'claimed', claimed_at = NOW(), claimed_by = $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM gift_tasks
			WHERE status = 'pending'
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND status = 'pending'
		RETURNING `+taskColumns,
		agentID,
	).StructScan(t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPendingTask
	}
	if err != nil {
		return nil, fmt.Errorf("claim next task: %w", err)
	}

	claimed(t)
	return t, nil
}

// Claim moves one specific task from pending to claimed. Exactly one of any
// number of concurrent callers succeeds.
func (r *repository) Claim(ctx context.Context, id int64, agentID string) (*Task, error) {
	t := &Task{}
	err := r.db.QueryRowxContext(ctx, `
		UPDATE gift_tasks
		SET status = 'claimed', claimed_at = NOW(), claimed_by = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+taskColumns,
		id, agentID,
	).StructScan(t)
	if err == nil {
		claimed(t)
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim task %d: %w", id, err)
	}

	var status Status
	err = r.db.GetContext(ctx, &status, `SELECT status FROM gift_tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordClaimConflict()
	logger.Debug("claim lost", "task_id", id, "agent_id", agentID, "status", status)
	return nil, ErrAlreadyClaimed
}

// Complete settles a claimed task from the agent's delivered count. A task
// that is already terminal is returned unchanged with Replayed set.
func (r *repository) Complete(ctx context.Context, id int64, delivered int) (*Outcome, error) {
	if delivered < 0 {
		return nil, ErrInvalidQuantity
	}

	var out *Outcome
	err := r.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		out = nil
		t, err := lockTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			out = replayed(t)
			return nil
		}
		if t.Status != StatusClaimed {
			return ErrInvalidTransition
		}

		switch {
		case delivered == 0:
			reason := reasonZeroDelivered
			out, err = r.settle(ctx, tx, t, StatusFailed, 0, &reason, t.AttemptCount)
		case delivered >= t.QuantityRequested:
			if delivered > t.QuantityRequested {
				logger.Warn("agent over-reported delivery", "task_id", t.ID, "requested", t.QuantityRequested, "reported", delivered)
			}
			out, err = r.settle(ctx, tx, t, StatusCompleted, t.QuantityRequested, nil, t.AttemptCount)
		default:
			out, err = r.settle(ctx, tx, t, StatusPartialSuccess, delivered, nil, t.AttemptCount)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	settled(StatusClaimed, out)
	return out, nil
}

// Fail settles a claimed task as undelivered and refunds its full cost.
func (r *repository) Fail(ctx context.Context, id int64, reason string) (*Outcome, error) {
	var out *Outcome
	err := r.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		out = nil
		t, err := lockTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			out = replayed(t)
			return nil
		}
		if t.Status != StatusClaimed {
			return ErrInvalidTransition
		}

		out, err = r.settle(ctx, tx, t, StatusFailed, 0, &reason, t.AttemptCount)
		return err
	})
	if err != nil {
		return nil, err
	}

	settled(StatusClaimed, out)
	return out, nil
}

// ReclaimStale returns tasks claimed longer than staleAfter to the queue.
// A task whose reclaim count would exceed maxAttempts is failed and refunded
// instead. Each task is handled in its own transaction so one bad row does
// not hold back the rest.
func (r *repository) ReclaimStale(ctx context.Context, staleAfter time.Duration, maxAttempts, limit int) (*ReclaimReport, error) {
	report := newReport()
	if staleAfter <= 0 {
		return report, nil
	}
	ms := staleAfter.Milliseconds()

	ids := []int64{}
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM gift_tasks
		WHERE status = 'claimed' AND claimed_at < NOW() - ($1::bigint * INTERVAL '1 millisecond')
		ORDER BY claimed_at
		LIMIT $2
	`, ms, limit)
	if err != nil {
		return nil, fmt.Errorf("find stale tasks: %w", err)
	}

	for _, id := range ids {
		var out *Outcome
		var requeued bool
		err := r.tx.InTx(ctx, func(tx *sqlx.Tx) error {
			out, requeued = nil, false

			t := &Task{}
			err := tx.QueryRowxContext(ctx, `
				SELECT `+taskColumns+`
				FROM gift_tasks
				WHERE id = $1 AND status = 'claimed' AND claimed_at < NOW() - ($2::bigint * INTERVAL '1 millisecond')
				FOR UPDATE SKIP LOCKED
			`, id, ms).StructScan(t)
			if errors.Is(err, sql.ErrNoRows) {
				// settled or re-claimed since the scan
				return nil
			}
			if err != nil {
				return err
			}

			attempts := t.AttemptCount + 1
			if attempts > maxAttempts {
				reason := fmt.Sprintf("delivery not confirmed after %d attempts", t.AttemptCount)
				out, err = r.settle(ctx, tx, t, StatusFailed, 0, &reason, attempts)
				return err
			}

			if _, err := tx.ExecContext(ctx, `
				UPDATE gift_tasks
				SET status = 'pending', claimed_at = NULL, claimed_by = NULL, attempt_count = $2, updated_at = NOW()
				WHERE id = $1
			`, t.ID, attempts); err != nil {
				return err
			}
			requeued = true
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			logger.Error("reclaim failed", "task_id", id, "error", err)
			continue
		}

		switch {
		case requeued:
			report.Requeued = append(report.Requeued, id)
			metrics.RecordTransition(string(StatusClaimed), string(StatusPending))
			logger.Info("stale task requeued", "task_id", id)
		case out != nil:
			report.Failed = append(report.Failed, id)
			settled(StatusClaimed, out)
		}
	}

	return report, nil
}

// ExpirePending fails and refunds tasks that have sat unclaimed for longer
// than olderThan. A zero duration disables expiry.
func (r *repository) ExpirePending(ctx context.Context, olderThan time.Duration, limit int) (*ReclaimReport, error) {
	report := newReport()
	if olderThan <= 0 {
		return report, nil
	}
	ms := olderThan.Milliseconds()

	ids := []int64{}
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM gift_tasks
		WHERE status = 'pending' AND updated_at < NOW() - ($1::bigint * INTERVAL '1 millisecond')
		ORDER BY updated_at
		LIMIT $2
	`, ms, limit)
	if err != nil {
		return nil, fmt.Errorf("find expired tasks: %w", err)
	}

	for _, id := range ids {
		var out *Outcome
		err := r.tx.InTx(ctx, func(tx *sqlx.Tx) error {
			out = nil

			t := &Task{}
			err := tx.QueryRowxContext(ctx, `
				SELECT `+taskColumns+`
				FROM gift_tasks
				WHERE id = $1 AND status = 'pending' AND updated_at < NOW() - ($2::bigint * INTERVAL '1 millisecond')
				FOR UPDATE SKIP LOCKED
			`, id, ms).StructScan(t)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}

			reason := reasonExpired
			out, err = r.settle(ctx, tx, t, StatusFailed, 0, &reason, t.AttemptCount)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			logger.Error("expiry failed", "task_id", id, "error", err)
			continue
		}
		if out != nil {
			report.Expired = append(report.Expired, id)
			settled(StatusPending, out)
		}
	}

	return report, nil
}

// settle moves a locked task to a terminal status and credits back the cost
// of every undelivered unit. It must run inside tx.
func (r *repository) settle(ctx context.Context, tx *sqlx.Tx, t *Task, to Status, delivered int, lastErr *string, attempts int) (*Outcome, error) {
	refund := t.UnitCost * int64(t.QuantityRequested-delivered)
	if refund > 0 {
		kind := ledger.KindRefundPartial
		if to == StatusFailed {
			kind = ledger.KindRefundFailed
		}
		taskID := t.ID
		if _, err := r.ledger.Credit(ctx, tx, t.AccountID, refund, kind, &taskID); err != nil {
			return nil, fmt.Errorf("refund task %d: %w", t.ID, err)
		}
	}

	updated := &Task{}
	err := tx.QueryRowxContext(ctx, `
		UPDATE gift_tasks
		SET status = $2, quantity_delivered = $3, refund_amount = $4,
		    last_error = COALESCE($5, last_error), attempt_count = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+taskColumns,
		t.ID, to, delivered, refund, lastErr, attempts,
	).StructScan(updated)
	if err != nil {
		return nil, fmt.Errorf("settle task %d: %w", t.ID, err)
	}

	return &Outcome{Task: updated, Refunded: refund}, nil
}

func lockTask(ctx context.Context, tx *sqlx.Tx, id int64) (*Task, error) {
	t := &Task{}
	err := tx.QueryRowxContext(ctx,
		`SELECT `+taskColumns+` FROM gift_tasks WHERE id = $1 FOR UPDATE`,
		id,
	).StructScan(t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock task %d: %w", id, err)
	}
	return t, nil
}

func replayed(t *Task) *Outcome {
	return &Outcome{Task: t, Refunded: t.RefundAmount, Replayed: true}
}

func newReport() *ReclaimReport {
	return &ReclaimReport{Requeued: []int64{}, Failed: []int64{}, Expired: []int64{}}
}

func claimed(t *Task) {
	metrics.RecordTransition(string(StatusPending), string(StatusClaimed))
	logger.Info("gift task claimed", "task_id", t.ID, "agent_id", deref(t.ClaimedBy), "attempt", t.AttemptCount)
}

// settled records a committed transition. Replays are logged but not counted.
func settled(from Status, out *Outcome) {
	if out.Replayed {
		logger.Debug("gift task already settled", "task_id", out.Task.ID, "status", out.Task.Status)
		return
	}
	metrics.RecordTransition(string(from), string(out.Task.Status))
	logger.Info("gift task settled",
		"task_id", out.Task.ID,
		"account_id", out.Task.AccountID,
		"status", out.Task.Status,
		"delivered", out.Task.QuantityDelivered,
		"requested", out.Task.QuantityRequested,
		"refund", out.Refunded,
	)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
