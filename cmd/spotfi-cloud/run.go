package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/adminapi"
	"github.com/spotfi/spotfi-cloud/internal/auth"
	"github.com/spotfi/spotfi-cloud/internal/config"
	"github.com/spotfi/spotfi-cloud/internal/database"
	"github.com/spotfi/spotfi-cloud/internal/edgefabric"
	"github.com/spotfi/spotfi-cloud/internal/events"
	"github.com/spotfi/spotfi-cloud/internal/middleware"
	"github.com/spotfi/spotfi-cloud/internal/portal"
	"github.com/spotfi/spotfi-cloud/internal/qse"
	"github.com/spotfi/spotfi-cloud/internal/scheduler"
	"github.com/spotfi/spotfi-cloud/internal/server"
	"github.com/spotfi/spotfi-cloud/internal/store"
)

// run wires every component together in dependency order and blocks until
// SIGINT/SIGTERM, then tears everything down through a shutdownCoordinator.
// Grounded on the teacher's cmd/nnc numbered-step run() and its
// bootstrap.ShutdownCoordinator.
func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Load configuration.
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// 2. Structured logger.
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	// 3. Event bus (typed subscription helpers needed for the reconciler hook).
	bus, err := events.NewSubscribableEventBus(events.EventBusOptions{BufferSize: 2000})
	if err != nil {
		return fmt.Errorf("creating event bus: %w", err)
	}
	logger.Info("event bus started")

	// 4. Relational Store: apply migrations, then open the pool.
	if err := store.RunMigrations(cfg.StoreDSN, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	st, err := store.Open(ctx, store.DefaultConfig(cfg.StoreDSN))
	if err != nil {
		return fmt.Errorf("opening relational store: %w", err)
	}
	logger.Info("relational store ready")

	// 5. Ephemeral Store (Redis): router liveness keys, UAM login rate
	// limiting. Constructed before Edge Fabric since the broker's presence
	// tracker needs it wired before the first status/metrics message arrives.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 6. Edge Fabric: the single MQTT connection to the fleet, the per-router
	// RPC capability cache that lets it skip known-unsupported methods
	// instead of waiting out a full timeout, and ES/RS-backed presence
	// tracking.
	broker := edgefabric.New(edgefabricConfig(cfg), bus, logger)
	capabilities, err := database.NewManager(ctx)
	if err != nil {
		return fmt.Errorf("opening rpc capability cache: %w", err)
	}
	broker.SetCapabilityStore(capabilities)
	broker.Presence().SetDependencies(rdb, st)
	if err := broker.Start(ctx); err != nil {
		return fmt.Errorf("starting edge fabric broker: %w", err)
	}
	go broker.Presence().RunSweeper(ctx, presenceSweepInterval)
	logger.Info("edge fabric broker connected")

	// 7. Quota & Session Engine: disconnect worker, notification listener,
	// stale-session sweeper, router reconciler, plan-expiry job.
	workerCfg := qse.DefaultDisconnectWorkerConfig()
	workerCfg.Concurrency = cfg.DisconnectWorkerConcurrency
	worker := qse.NewDisconnectWorker(workerCfg, st, broker, bus, logger)
	go worker.Run(ctx)

	listenerCfg := qse.DefaultListenerConfig()
	listenerCfg.PollFallbackEnabled = cfg.QSEPollFallbackEnabled
	listenerCfg.PollInterval = cfg.QSEPollInterval
	listener := qse.NewListener(listenerCfg, st.Pool(), bus, worker, logger)
	go listener.Run(ctx)

	sweeper := qse.NewSweeper(qse.DefaultSweeperConfig(), st, bus, logger)
	go sweeper.Run(ctx)

	reconcilerCfg := qse.DefaultReconcilerConfig()
	reconcilerCfg.Concurrency = cfg.ReconcilerConcurrency
	reconciler := qse.NewReconciler(reconcilerCfg, st, broker, logger)

	planExpiry := qse.NewPlanExpiryJob(st, worker, logger)
	go planExpiry.Run(ctx)

	// A router's OFFLINE->ONLINE transition may have been missed by the
	// broker while it was down; reconcile its RADIUS/reject state as soon
	// as presence says it's back.
	if err := bus.OnRouterConnected(func(ctx context.Context, event *events.RouterConnectedEvent) error {
		if err := reconciler.ReconcileOne(ctx, event.RouterID); err != nil {
			logger.Error("reconciling router", zap.String("routerID", event.RouterID), zap.Error(err))
		}
		return nil
	}); err != nil {
		return fmt.Errorf("subscribing router-connected handler: %w", err)
	}
	logger.Info("quota & session engine started")

	// 8. Scheduler: invoice hand-off and router daily-usage materialization.
	sched, err := scheduler.New(scheduler.Config{Store: st, Bus: bus, Logger: logger})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	// 9. Captive-Portal Pipeline.
	radiusClient := portal.NewRadiusClient(portal.DefaultRadiusConfig(cfg.RadiusAddr))
	loginLimiter := portal.NewLoginLimiter(portal.DefaultLoginLimitConfig(), rdb)
	loopDetector := portal.NewLoopDetector(portal.DefaultLoopDetectorConfig())
	portalCfg := portal.DefaultConfig(cfg.RadiusAddr, cfg.DefaultRedirectURL)
	portalCfg.AllowedRedirectDomains = cfg.AllowedRedirectDomains
	portalCfg.AllowIPv6 = cfg.AllowIPv6
	portalHandler := portal.NewHandler(portalCfg, st, radiusClient, loginLimiter, loopDetector, bus, logger)

	// 10. Operator auth + x-tunnel: JWT login against the operator_accounts
	// table, and the WebSocket shell tunnel onto a router's x/in and x/out
	// MQTT topics.
	jwtSvc, err := auth.NewJWTServiceFromEnv()
	if err != nil {
		return fmt.Errorf("loading JWT service: %w", err)
	}
	auditLogger := auth.NewLoggerAuditLogger("operator")
	authSvc, err := auth.NewService(auth.Config{
		JWTService:        jwtSvc,
		UserRepository:    store.NewOperatorUserRepository(st),
		SessionRepository: store.NewOperatorSessionRepository(st),
		AuditLogger:       auditLogger,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}
	adminHandler := adminapi.NewHandler(authSvc, auditLogger, st, broker, worker, reconciler, logger)

	authMiddlewareCfg := middleware.DefaultAuthMiddlewareConfig(jwtSvc)
	authMiddlewareCfg.SessionValidator = func(ctx context.Context, sessionID string) (*middleware.SessionInfo, error) {
		session, err := authSvc.ValidateSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &middleware.SessionInfo{ID: session.ID, CreatedAt: session.CreatedAt, ExpiresAt: session.ExpiresAt}, nil
	}

	srv := server.New(server.DefaultConfig(cfg.HTTPAddr))
	server.ApplyMiddleware(srv.Echo)
	portalHandler.RegisterRoutes(srv.Echo)
	adminHandler.RegisterRoutes(srv.Echo, authMiddlewareCfg)
	srv.Echo.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	coordinator := newShutdownCoordinator(logger, cancel, sched, worker, broker, rdb, st, bus, capabilities)

	srv.Start(coordinator.shutdown)
	return nil
}

// presenceSweepInterval is the maintenance tick that promotes a router RS
// still marks ONLINE to OFFLINE once its ES presence key has expired without
// a refresh, comfortably inside spec.md §8 scenario 3's "≤5 min" bound.
const presenceSweepInterval = time.Minute

func edgefabricConfig(cfg *config.Config) edgefabric.Config {
	c := edgefabric.DefaultConfig(cfg.BrokerURL)
	c.Username = cfg.BrokerUsername
	c.Password = cfg.BrokerPassword
	return c
}
