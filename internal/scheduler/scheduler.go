// Package scheduler runs the cron-like background jobs that sit outside the
// Quota & Session Engine's event-driven path: invoicing hand-off and daily
// usage materialization (SPEC_FULL.md §2, §7). Stale-session cleanup and
// plan-expiry are owned by internal/qse instead, since both feed directly
// into the disconnect worker they already wake. Grounded on the teacher's
// internal/features/updates/scheduler.go: a config struct validated by a
// constructor, a context/cancel/WaitGroup-driven Start/Stop lifecycle, one
// ticker-driven loop per job.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/events"
	"github.com/spotfi/spotfi-cloud/internal/store"
)

// Config holds the scheduler's dependencies and tick intervals.
type Config struct {
	Store  *store.Store
	Bus    events.EventBus
	Logger *zap.Logger

	// InvoiceHandoffInterval is how often ListUsageCountersUpdatedSince is
	// polled and published for the external billing collaborator to
	// consume. Default: 1 hour.
	InvoiceHandoffInterval time.Duration

	// MaterializeInterval is how often router_daily_usage is snapshotted
	// into router_daily_usage_summary. Default: 15 minutes.
	MaterializeInterval time.Duration
}

// Scheduler owns the lifecycle of the invoicing hand-off job and the daily
// usage materializer.
type Scheduler struct {
	cfg       Config
	logger    *zap.Logger
	publisher *events.Publisher

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	lastHandoff time.Time
}

// New validates cfg and constructs a Scheduler. Store, Bus and Logger are
// required; the two intervals fall back to their documented defaults when
// zero.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.InvoiceHandoffInterval == 0 {
		cfg.InvoiceHandoffInterval = time.Hour
	}
	if cfg.MaterializeInterval == 0 {
		cfg.MaterializeInterval = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:       cfg,
		logger:    cfg.Logger.Named("scheduler"),
		publisher: events.NewPublisher(cfg.Bus, "scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start launches the two job loops. Returns an error if already running.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.lastHandoff = time.Now()

	s.wg.Add(2)
	go s.runLoop(s.cfg.InvoiceHandoffInterval, s.runInvoiceHandoff)
	go s.runLoop(s.cfg.MaterializeInterval, s.runMaterialize)

	s.logger.Info("scheduler started",
		zap.Duration("invoice_handoff_interval", s.cfg.InvoiceHandoffInterval),
		zap.Duration("materialize_interval", s.cfg.MaterializeInterval))
	return nil
}

// Stop cancels both job loops and waits for them to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) runLoop(interval time.Duration, job func(ctx context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			job(s.ctx)
		}
	}
}
