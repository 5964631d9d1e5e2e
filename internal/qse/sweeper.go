package qse

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/events"
	"github.com/spotfi/spotfi-cloud/internal/store"
)

// SweeperConfig configures the stale-session sweeper.
type SweeperConfig struct {
	// Interval is how often the sweep runs.
	Interval time.Duration

	// StaleAfter is how long a session may go without an interim update
	// before it's considered stale (the router stopped sending accounting
	// updates without a clean stop, e.g. it lost power).
	StaleAfter time.Duration
}

// DefaultSweeperConfig returns spec.md §4.2's defaults: sweep every 5
// minutes, 10-minute staleness threshold.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:   5 * time.Minute,
		StaleAfter: 10 * time.Minute,
	}
}

// Sweeper closes accounting sessions that have gone stale: no interim
// update within StaleAfter, which almost always means the router dropped
// off the network without a clean RADIUS Stop record.
type Sweeper struct {
	cfg    SweeperConfig
	store  *store.Store
	bus    events.EventBus
	logger *zap.Logger
}

// NewSweeper constructs a Sweeper.
func NewSweeper(cfg SweeperConfig, st *store.Store, bus events.EventBus, logger *zap.Logger) *Sweeper {
	return &Sweeper{cfg: cfg, store: st, bus: bus, logger: logger.Named("sweeper")}
}

// Run sweeps on cfg.Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.StaleAfter)
	stale, err := s.store.GetStaleSessions(ctx, cutoff)
	if err != nil {
		s.logger.Error("loading stale sessions", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}
	s.logger.Info("closing stale sessions", zap.Int("count", len(stale)))

	now := time.Now()
	for _, sess := range stale {
		if err := s.store.CloseSession(ctx, sess.AcctUniqueID, "Admin-Reset", now); err != nil {
			s.logger.Warn("closing stale session", zap.String("acctUniqueID", sess.AcctUniqueID), zap.Error(err))
			continue
		}
		_ = s.bus.Publish(ctx, events.NewSessionClosedEvent(
			sess.AcctUniqueID, valueOrEmpty(sess.RouterID), sess.Username, "stale_sweep",
			sess.AcctInputOctets+sess.AcctOutputOctets, int64(now.Sub(sess.AcctStartTime).Seconds()), "qse"))
	}
}
