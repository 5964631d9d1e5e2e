// Package qse is the Quota & Session Engine: the notification listener that
// reacts to PL/pgSQL usage-counter triggers, the disconnect worker pool that
// drains the resulting job queue, the stale-session sweeper, the router
// reconciler, and the hourly plan-expiry job (spec.md §4.2).
package qse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spotfi/spotfi-cloud/internal/edgefabric"
	"github.com/spotfi/spotfi-cloud/internal/events"
	"github.com/spotfi/spotfi-cloud/internal/store"
)

// DisconnectWorkerConfig configures the disconnect-queue drain loop.
type DisconnectWorkerConfig struct {
	// Concurrency is the number of jobs processed in parallel.
	Concurrency int

	// RateLimit caps dispatch requests per second across all workers.
	RateLimit rate.Limit

	// MaxAttempts is the number of CoA-Disconnect attempts before giving up.
	MaxAttempts int

	// PollInterval is how often the worker pool wakes up to check for work
	// when not notification-driven (it is always invoked by the listener,
	// but also polls on this interval as a safety net).
	PollInterval time.Duration

	// BatchSize is how many pending jobs are claimed per poll.
	BatchSize int
}

// DefaultDisconnectWorkerConfig returns spec.md §4.2's defaults: 20
// concurrent workers, 100 requests/sec, 3 attempts with 2s/4s/8s backoff.
func DefaultDisconnectWorkerConfig() DisconnectWorkerConfig {
	return DisconnectWorkerConfig{
		Concurrency:  20,
		RateLimit:    100,
		MaxAttempts:  3,
		PollInterval: 2 * time.Second,
		BatchSize:    50,
	}
}

// DisconnectWorker drains the disconnect job queue: upserts a RADIUS reject
// rule, issues an RPC kick-session call to the owning router, closes the
// session row, and marks the job processed. Grounded on
// internal/repository/cleanup_queue.go's retry-then-requeue shape,
// generalized from an in-memory task slice to a durable SQL queue (the
// queue itself is store.GetPendingDisconnectJobs/MarkDisconnectJobProcessed;
// this worker only drives the retry policy around those calls).
type DisconnectWorker struct {
	cfg     DisconnectWorkerConfig
	store   *store.Store
	broker  *edgefabric.Broker
	bus     events.EventBus
	logger  *zap.Logger
	limiter *rate.Limiter

	wake chan struct{}
	stop chan struct{}
}

// NewDisconnectWorker constructs a worker pool. Call Run in a goroutine.
func NewDisconnectWorker(cfg DisconnectWorkerConfig, st *store.Store, broker *edgefabric.Broker, bus events.EventBus, logger *zap.Logger) *DisconnectWorker {
	return &DisconnectWorker{
		cfg:     cfg,
		store:   st,
		broker:  broker,
		bus:     bus,
		logger:  logger.Named("disconnect-worker"),
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Concurrency),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Wake signals the worker to check for new jobs immediately, called by the
// notification listener when a trigger inserts a new disconnect_jobs row.
func (w *DisconnectWorker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run processes the disconnect queue until ctx is cancelled or Stop is
// called.
func (w *DisconnectWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-w.wake:
			w.drain(ctx)
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// Stop halts the worker loop.
func (w *DisconnectWorker) Stop() { close(w.stop) }

func (w *DisconnectWorker) drain(ctx context.Context) {
	jobs, err := w.store.GetPendingDisconnectJobs(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("fetching pending disconnect jobs", zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	done := make(chan struct{}, len(jobs))
	for _, job := range jobs {
		job := job
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; done <- struct{}{} }()
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
			w.process(ctx, job)
		}()
	}
	for range jobs {
		<-done
	}
}

func (w *DisconnectWorker) process(ctx context.Context, job *store.DisconnectJob) {
	attempt := 0
	b := backoff.WithMaxRetries(fixedBackoff(2*time.Second, 3), uint64(w.cfg.MaxAttempts-1))

	err := backoff.Retry(func() error {
		attempt++
		err := w.dispatch(ctx, job, attempt)
		if err != nil {
			w.logger.Warn("disconnect dispatch attempt failed",
				zap.Int64("jobID", job.ID), zap.String("username", job.Username),
				zap.Int("attempt", attempt), zap.Error(err))
			_ = w.bus.Publish(ctx, events.NewDisconnectJobEvent(
				events.EventTypeDisconnectJobDispatched, fmt.Sprint(job.ID), "", "",
				string(job.Reason), attempt, err.Error(), "qse"))
		}
		return err
	}, b)

	if err != nil {
		w.logger.Error("disconnect job exhausted retries",
			zap.Int64("jobID", job.ID), zap.String("username", job.Username), zap.Error(err))
		_ = w.bus.Publish(ctx, events.NewDisconnectJobEvent(
			events.EventTypeDisconnectJobFailed, fmt.Sprint(job.ID), "", "",
			string(job.Reason), attempt, err.Error(), "qse"))
		return
	}

	if err := w.store.MarkDisconnectJobProcessed(ctx, job.ID); err != nil {
		w.logger.Error("marking disconnect job processed", zap.Int64("jobID", job.ID), zap.Error(err))
		return
	}
	_ = w.bus.Publish(ctx, events.NewDisconnectJobEvent(
		events.EventTypeDisconnectJobCompleted, fmt.Sprint(job.ID), "", "",
		string(job.Reason), attempt, "", "qse"))
}

// dispatch installs the standing reject rule, then for every open session
// whose router is ONLINE in ES, issues a client_remove RPC against the
// router's uspot proxy and closes the session row on acceptance (spec.md
// §4.2 step 2, §8 scenario 1's literal {path:"uspot", method:"client_remove",
// args:{mac:...}}). A session whose router is offline or unreachable is left
// open here — its closure is deferred to router reconciliation once the
// router comes back (step 4).
func (w *DisconnectWorker) dispatch(ctx context.Context, job *store.DisconnectJob, attempt int) error {
	if err := w.store.UpsertRadiusReject(ctx, job.Username); err != nil {
		return fmt.Errorf("upserting radius reject rule: %w", err)
	}

	sessions, err := w.store.GetOpenSessionsForUser(ctx, job.Username)
	if err != nil {
		return fmt.Errorf("loading open sessions: %w", err)
	}

	now := time.Now()
	cause := terminateCauseFor(job.Reason)
	var errs []error
	for _, sess := range sessions {
		if sess.RouterID == nil {
			continue
		}
		if !w.broker.Presence().IsOnline(ctx, *sess.RouterID) {
			w.logger.Info("router offline, deferring session close to reconciliation",
				zap.String("routerID", *sess.RouterID), zap.String("acctUniqueID", sess.AcctUniqueID))
			continue
		}

		_, rpcErr := w.broker.Call(ctx, *sess.RouterID, "uspot", "client_remove", map[string]string{
			"mac": sess.CallingStationID,
		})
		if rpcErr != nil {
			errs = append(errs, fmt.Errorf("rpc client_remove for router %s: %w", *sess.RouterID, rpcErr))
			continue
		}

		if err := w.store.CloseSession(ctx, sess.AcctUniqueID, cause, now); err != nil {
			errs = append(errs, fmt.Errorf("closing session %s: %w", sess.AcctUniqueID, err))
			continue
		}
		_ = w.bus.Publish(ctx, events.NewSessionClosedEvent(
			sess.AcctUniqueID, valueOrEmpty(sess.RouterID), sess.Username, cause,
			sess.AcctInputOctets+sess.AcctOutputOctets, int64(now.Sub(sess.AcctStartTime).Seconds()), "qse"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// terminateCauseFor always returns Admin-Reset: spec.md §4.2 step 4 mandates
// this literal RADIUS Acct-Terminate-Cause for every disconnect-worker
// closure, regardless of whether the job was raised by quota exhaustion or
// plan expiry.
func terminateCauseFor(reason store.DisconnectReason) string {
	return "Admin-Reset"
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// fixedBackoff returns a BackOff producing exactly 2s, 4s, 8s, ... (doubling
// each step) with no jitter, matching spec.md §4.2's fixed retry schedule.
func fixedBackoff(initial time.Duration, maxSteps int) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = initial * time.Duration(1<<uint(maxSteps))
	return eb
}
