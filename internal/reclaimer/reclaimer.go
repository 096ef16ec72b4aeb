package reclaimer

import (
	"context"
	"errors"
	"sync"
	"time"

	"giftrelay/internal/gifttask"
	"giftrelay/internal/logger"
	"giftrelay/internal/metrics"
)

// Sweeper is the part of the task store the reclaimer drives.
type Sweeper interface {
	ReclaimStale(ctx context.Context, staleAfter time.Duration, maxAttempts, limit int) (*gifttask.ReclaimReport, error)
	ExpirePending(ctx context.Context, olderThan time.Duration, limit int) (*gifttask.ReclaimReport, error)
}

type Config struct {
	StaleAfter  time.Duration
	MaxAttempts int
	BatchSize   int
	PendingTTL  time.Duration
	Interval    time.Duration
}

// Reclaimer periodically returns abandoned claims to the queue and settles
// tasks no agent will finish.
type Reclaimer struct {
	store Sweeper
	cfg   Config

	// one sweep at a time, whether from the ticker or an admin request
	mu sync.Mutex
}

func New(store Sweeper, cfg Config) *Reclaimer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Reclaimer{store: store, cfg: cfg}
}

// Start sweeps every interval until ctx is cancelled. It returns only after
// any sweep it started has finished.
func (r *Reclaimer) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	log := logger.WithFields(map[string]interface{}{
		"component":    "reclaimer",
		"interval":     r.cfg.Interval.String(),
		"stale_after":  r.cfg.StaleAfter.String(),
		"max_attempts": r.cfg.MaxAttempts,
		"pending_ttl":  r.cfg.PendingTTL.String(),
	})
	log.Info("reclaimer started")

	for {
		select {
		case <-ctx.Done():
			log.Info("reclaimer stopped")
			return
		case <-ticker.C:
			if _, err := r.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("reclaim sweep failed")
			}
		}
	}
}

// SweepOnce runs a single reclaim and expiry pass and returns what it
// changed. Both passes run even if the first one fails.
func (r *Reclaimer) SweepOnce(ctx context.Context) (*gifttask.ReclaimReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := &gifttask.ReclaimReport{Requeued: []int64{}, Failed: []int64{}, Expired: []int64{}}
	var errs []error

	stale, err := r.store.ReclaimStale(ctx, r.cfg.StaleAfter, r.cfg.MaxAttempts, r.cfg.BatchSize)
	if err != nil {
		errs = append(errs, err)
	}
	if stale != nil {
		report.Requeued = append(report.Requeued, stale.Requeued...)
		report.Failed = append(report.Failed, stale.Failed...)
	}

	expired, err := r.store.ExpirePending(ctx, r.cfg.PendingTTL, r.cfg.BatchSize)
	if err != nil {
		errs = append(errs, err)
	}
	if expired != nil {
		report.Expired = append(report.Expired, expired.Expired...)
	}

	metrics.RecordReclaim("requeued", len(report.Requeued))
	metrics.RecordReclaim("failed", len(report.Failed))
	metrics.RecordReclaim("expired", len(report.Expired))

	if err := errors.Join(errs...); err != nil {
		metrics.RecordSweep("error")
		return report, err
	}
	metrics.RecordSweep("ok")

	if !report.Empty() {
		logger.Info("reclaim sweep",
			"requeued", report.Requeued,
			"failed", report.Failed,
			"expired", report.Expired,
		)
	}
	return report, nil
}
