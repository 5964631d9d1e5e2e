package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/database"
	"github.com/spotfi/spotfi-cloud/internal/edgefabric"
	"github.com/spotfi/spotfi-cloud/internal/events"
	"github.com/spotfi/spotfi-cloud/internal/qse"
	"github.com/spotfi/spotfi-cloud/internal/scheduler"
	"github.com/spotfi/spotfi-cloud/internal/store"
)

// shutdownCoordinator tears every background component down in dependency
// order. Grounded on the teacher's bootstrap.ShutdownCoordinator: stop
// producers of work before the things they depend on, event bus and store
// last.
type shutdownCoordinator struct {
	logger *zap.Logger
	cancel context.CancelFunc

	scheduler    *scheduler.Scheduler
	worker       *qse.DisconnectWorker
	broker       *edgefabric.Broker
	redis        *redis.Client
	store        *store.Store
	bus          events.EventBus
	capabilities *database.Manager
}

func newShutdownCoordinator(
	logger *zap.Logger,
	cancel context.CancelFunc,
	sched *scheduler.Scheduler,
	worker *qse.DisconnectWorker,
	broker *edgefabric.Broker,
	rdb *redis.Client,
	st *store.Store,
	bus events.EventBus,
	capabilities *database.Manager,
) *shutdownCoordinator {
	return &shutdownCoordinator{
		logger:       logger,
		cancel:       cancel,
		scheduler:    sched,
		worker:       worker,
		broker:       broker,
		redis:        rdb,
		store:        st,
		bus:          bus,
		capabilities: capabilities,
	}
}

// shutdown stops the scheduler and disconnect worker, cancels the listener/
// sweeper/reconciler/plan-expiry background context, closes the broker's
// MQTT connection, then the event bus, Redis client and store pool.
func (s *shutdownCoordinator) shutdown(ctx context.Context) {
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			s.logger.Warn("stopping scheduler", zap.Error(err))
		} else {
			s.logger.Info("scheduler stopped")
		}
	}

	if s.worker != nil {
		s.worker.Stop()
		s.logger.Info("disconnect worker stopped")
	}

	// Cancels the listener, sweeper, reconciler and plan-expiry loops, all
	// of which share the root context passed into run().
	if s.cancel != nil {
		s.cancel()
	}

	if s.broker != nil {
		s.broker.Close()
		s.logger.Info("edge fabric broker closed")
	}

	if s.capabilities != nil {
		if err := s.capabilities.Close(); err != nil {
			s.logger.Warn("closing rpc capability cache", zap.Error(err))
		}
	}

	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Warn("closing event bus", zap.Error(err))
		} else {
			s.logger.Info("event bus closed")
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis client", zap.Error(err))
		}
	}

	if s.store != nil {
		s.store.Close()
		s.logger.Info("relational store closed")
	}

	s.logger.Info("graceful shutdown complete")
}
