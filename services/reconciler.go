package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"marketplace/repository"
)

const reconcileBatchSize = 100

type splitRunner interface {
	Split(ctx context.Context, orderID string) (*SplitResult, error)
}

// Reconciler periodically re-splits orders that never got sub-orders, which
// covers order_created events lost between the write and the publish.
type Reconciler struct {
	orders   repository.OrderRepository
	splitter splitRunner
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewReconciler(orders repository.OrderRepository, splitter splitRunner, interval, grace time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		orders:   orders,
		splitter: splitter,
		interval: interval,
		grace:    grace,
		now:      time.Now,
		logger:   logger,
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("Split reconciliation failed", zap.Error(err))
			}
		}
	}
}

// Sweep returns the number of sub-orders created.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	ids, err := r.orders.ListUnsplit(ctx, r.now().Add(-r.grace), reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		result, err := r.splitter.Split(ctx, id)
		if err != nil {
			r.logger.Warn("Failed to split order during reconciliation",
				zap.String("order_id", id),
				zap.Error(err),
			)
			continue
		}
		created += len(result.Created)
	}

	if created > 0 {
		r.logger.Info("Reconciled unsplit orders",
			zap.Int("orders", len(ids)),
			zap.Int("vendor_orders_created", created),
		)
	}
	return created, nil
}
