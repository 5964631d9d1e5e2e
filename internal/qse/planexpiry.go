package qse

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/store"
)

// PlanExpiryJob transitions expired ACTIVE plan assignments to EXPIRED and
// enqueues a disconnect job for each affected user, run hourly per
// spec.md §4.2.
type PlanExpiryJob struct {
	interval time.Duration
	store    *store.Store
	worker   *DisconnectWorker
	logger   *zap.Logger
}

// NewPlanExpiryJob constructs a PlanExpiryJob with the default hourly
// interval.
func NewPlanExpiryJob(st *store.Store, worker *DisconnectWorker, logger *zap.Logger) *PlanExpiryJob {
	return &PlanExpiryJob{
		interval: time.Hour,
		store:    st,
		worker:   worker,
		logger:   logger.Named("plan-expiry"),
	}
}

// Run ticks on j.interval until ctx is cancelled.
func (j *PlanExpiryJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *PlanExpiryJob) runOnce(ctx context.Context) {
	count, err := j.store.ExpirePlanAssignments(ctx, time.Now())
	if err != nil {
		j.logger.Error("expiring plan assignments", zap.Error(err))
		return
	}
	if count > 0 {
		j.logger.Info("expired plan assignments", zap.Int("count", count))
		// ExpirePlanAssignments already enqueued disconnect_jobs rows; wake
		// the worker rather than waiting for its next poll tick.
		j.worker.Wake()
	}
}
