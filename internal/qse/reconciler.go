package qse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/spotfi/spotfi-cloud/internal/edgefabric"
	"github.com/spotfi/spotfi-cloud/internal/store"
)

// ReconcilerConfig configures router state reconciliation.
type ReconcilerConfig struct {
	// Concurrency bounds how many routers are reconciled in parallel.
	Concurrency int

	// RateLimit caps reconciliation RPCs issued per second.
	RateLimit rate.Limit
}

// DefaultReconcilerConfig returns spec.md §4.2's defaults: 5 concurrent
// reconciliations, 10 jobs/sec.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{Concurrency: 5, RateLimit: 10}
}

// Reconciler re-derives a router's expected state after it transitions to
// ONLINE, in case Edge Fabric missed writes while the router was offline:
// its RADIUS NAS entry, and the diff between RS's session bookkeeping and
// the router's own live client list (closing what the router no longer
// reports, importing what RS never recorded). Grounded on the teacher's
// bounded-concurrency idiom; unlike the teacher's connection-pool workers
// this fans out over an explicit router-id list rather than a fixed worker
// pool, since reconciliation runs on demand (one ONLINE transition) or in a
// bounded batch, never as a steady-state pump.
type Reconciler struct {
	cfg     ReconcilerConfig
	store   *store.Store
	broker  *edgefabric.Broker
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewReconciler constructs a Reconciler.
func NewReconciler(cfg ReconcilerConfig, st *store.Store, broker *edgefabric.Broker, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		cfg:     cfg,
		store:   st,
		broker:  broker,
		logger:  logger.Named("reconciler"),
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Concurrency),
	}
}

// routerClientSession is one entry of a uspot client_list RPC response: the
// router's live view of who it is currently serving. Field names follow
// uspot's own wire vocabulary (mac/ip/user), not RS's column names.
type routerClientSession struct {
	MAC  string `json:"mac"`
	IP   string `json:"ip"`
	User string `json:"user"`
}

// ReconcileOne refreshes a single router's RADIUS NAS entry, then diffs RS's
// view of the router's open sessions against the router's own live session
// list (spec.md §4.2 "Router reconciliation"): RS-side sessions the router
// no longer reports are closed, and sessions the router reports that RS
// never recorded are imported, in case MQTT messages were missed while the
// router was offline. Called from Edge Fabric's presence tracker on every
// OFFLINE→ONLINE transition, and on-demand from the admin API.
func (r *Reconciler) ReconcileOne(ctx context.Context, routerID string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	router, err := r.store.GetRouter(ctx, routerID)
	if err != nil {
		return err
	}
	if err := r.store.EnsureRadiusClient(ctx, router); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	// spec.md names the disconnect path's path/method literally
	// (uspot/client_remove) but not this one; client_list is chosen to match
	// the same uspot proxy surface (documented in DESIGN.md as an Open
	// Question resolution).
	result, err := r.broker.Call(callCtx, routerID, "uspot", "client_list", nil)
	if err != nil {
		return fmt.Errorf("listing router sessions: %w", err)
	}

	var live []routerClientSession
	if err := json.Unmarshal(result, &live); err != nil {
		return fmt.Errorf("decoding client_list response: %w", err)
	}
	liveByMAC := make(map[string]routerClientSession, len(live))
	for _, c := range live {
		liveByMAC[c.MAC] = c
	}

	open, err := r.store.GetOpenSessionsForRouter(ctx, routerID)
	if err != nil {
		return fmt.Errorf("loading RS open sessions: %w", err)
	}
	knownMAC := make(map[string]bool, len(open))
	now := time.Now()
	for _, sess := range open {
		knownMAC[sess.CallingStationID] = true
		if _, stillLive := liveByMAC[sess.CallingStationID]; stillLive {
			continue
		}
		if err := r.store.CloseSession(ctx, sess.AcctUniqueID, "Admin-Reset", now); err != nil {
			r.logger.Warn("closing session missing from router's live list",
				zap.String("routerID", routerID), zap.String("acctUniqueID", sess.AcctUniqueID), zap.Error(err))
		}
	}

	for mac, c := range liveByMAC {
		if knownMAC[mac] {
			continue
		}
		sess := &store.Session{
			AcctUniqueID:     fmt.Sprintf("reconcile-%s-%s", routerID, uuid.NewString()),
			SessionID:        mac,
			Username:         c.User,
			RouterID:         &routerID,
			NASIPAddress:     router.NASIPAddress,
			CallingStationID: mac,
			FramedIPAddress:  c.IP,
			AcctStartTime:    now,
		}
		if err := r.store.OpenSession(ctx, sess); err != nil {
			r.logger.Warn("importing session from router's live list",
				zap.String("routerID", routerID), zap.String("mac", mac), zap.Error(err))
		}
	}

	return nil
}

// ReconcileAll reconciles every router in ids concurrently, bounded by
// Concurrency and RateLimit. A router whose reconciliation fails is logged
// and does not stop the others; the returned error is always nil.
func (r *Reconciler) ReconcileAll(ctx context.Context, ids []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := r.ReconcileOne(ctx, id); err != nil {
				r.logger.Warn("reconciliation failed", zap.String("routerID", id), zap.Error(err))
				// Reconciliation failures are per-router and shouldn't abort
				// the rest of the fleet sweep.
				return nil
			}
			return nil
		})
	}
	return g.Wait()
}
