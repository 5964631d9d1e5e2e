package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/events"
)

// invoiceHandoffEventType is the generic event type the external billing
// collaborator subscribes to; this package only publishes the aggregate
// usage, it never computes a bill (spec.md §1's invoicing non-goal).
const invoiceHandoffEventType = "usage.invoice_handoff"

// runInvoiceHandoff publishes every usage_counters row touched since the
// last run as a single hand-off event, then advances the watermark. A
// crash between publish and watermark advance re-publishes the same rows
// next tick; the collaborator is expected to dedupe on (username,
// period_key, total_bytes) since total_bytes is monotonic within a period.
func (s *Scheduler) runInvoiceHandoff(ctx context.Context) {
	since := s.lastHandoff
	counters, err := s.cfg.Store.ListUsageCountersUpdatedSince(ctx, since)
	if err != nil {
		s.logger.Error("listing usage counters for invoice hand-off", zap.Error(err))
		return
	}
	s.lastHandoff = time.Now()

	if len(counters) == 0 {
		return
	}

	entries := make([]map[string]interface{}, 0, len(counters))
	for _, c := range counters {
		entries = append(entries, map[string]interface{}{
			"username":    c.Username,
			"period_key":  c.PeriodKey,
			"total_bytes": c.TotalBytes,
			"updated_at":  c.UpdatedAt,
		})
	}

	ev := events.NewGenericEvent(invoiceHandoffEventType, events.PriorityNormal, "scheduler", map[string]interface{}{
		"since":   since,
		"entries": entries,
	})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("publishing invoice hand-off event", zap.Error(err))
		return
	}
	s.logger.Info("invoice hand-off published", zap.Int("counters", len(counters)))
}
