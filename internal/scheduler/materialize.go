package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// materializeLookback is how far back runMaterialize re-scans on every
// tick. Today's row keeps accumulating as sessions close, so a one-shot
// watermark (as invoice hand-off uses) would miss later updates to a date
// already passed once; re-upserting the last two days every tick is cheap
// and self-correcting.
const materializeLookback = 48 * time.Hour

// runMaterialize snapshots router_daily_usage rows from the last two days
// into router_daily_usage_summary, a read-optimized table fleet dashboards
// query directly (SPEC_FULL.md §7's router daily-usage materializer).
func (s *Scheduler) runMaterialize(ctx context.Context) {
	since := time.Now().Add(-materializeLookback)
	rows, err := s.cfg.Store.ListRouterDailyUsageSince(ctx, since)
	if err != nil {
		s.logger.Error("listing router daily usage for materialization", zap.Error(err))
		return
	}
	if len(rows) == 0 {
		return
	}
	if err := s.cfg.Store.UpsertRouterDailyUsageSummary(ctx, rows); err != nil {
		s.logger.Error("upserting router daily usage summary", zap.Error(err))
		return
	}
	s.logger.Debug("materialized router daily usage", zap.Int("rows", len(rows)))
}
