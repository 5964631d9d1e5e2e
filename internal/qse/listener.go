package qse

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/events"
)

// ListenerConfig configures the LISTEN/NOTIFY consumer.
type ListenerConfig struct {
	// Channels are the Postgres NOTIFY channels to subscribe to.
	Channels []string

	// PollFallbackEnabled enables a periodic poll of the disconnect queue
	// as a safety net if NOTIFY delivery is ever missed (spec.md §9's
	// resolved open question: notification-driven is primary, poll is a
	// disabled-by-default fallback).
	PollFallbackEnabled bool

	// PollInterval is used only when PollFallbackEnabled is true.
	PollInterval time.Duration
}

// DefaultListenerConfig subscribes to the disconnect-job and quota-exceeded
// notification channels with the poll fallback off.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		Channels:            []string{"spotfi_disconnect_job", "spotfi_quota_exceeded"},
		PollFallbackEnabled: false,
		PollInterval:        10 * time.Second,
	}
}

// Listener holds a dedicated (non-pooled) connection to the Relational
// Store and, on each Postgres NOTIFY, logs the payload and wakes the
// disconnect worker, per spec.md §4.2's ≤100ms notification-to-dispatch
// target. It publishes nothing onto the event bus it is given.
type Listener struct {
	cfg    ListenerConfig
	pool   *pgxpool.Pool
	bus    events.EventBus
	worker *DisconnectWorker
	logger *zap.Logger
}

// NewListener constructs a Listener. worker is woken directly on every
// disconnect-job notification so dispatch doesn't wait for its poll tick.
func NewListener(cfg ListenerConfig, pool *pgxpool.Pool, bus events.EventBus, worker *DisconnectWorker, logger *zap.Logger) *Listener {
	return &Listener{cfg: cfg, pool: pool, bus: bus, worker: worker, logger: logger.Named("qse-listener")}
}

// Run acquires a dedicated connection and blocks processing notifications
// until ctx is cancelled, reconnecting on error. If PollFallbackEnabled is
// set, a second ticker wakes the worker on PollInterval independent of
// NOTIFY delivery, as a safety net against a missed notification (spec.md
// §9's resolved open question).
func (l *Listener) Run(ctx context.Context) {
	if l.cfg.PollFallbackEnabled {
		go l.runPollFallback(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := l.listenOnce(ctx); err != nil {
			l.logger.Warn("listener connection lost, reconnecting", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (l *Listener) runPollFallback(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.worker.Wake()
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	for _, ch := range l.cfg.Channels {
		if _, err := conn.Exec(ctx, "LISTEN \""+ch+"\""); err != nil {
			return err
		}
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.handle(ctx, notification)
	}
}

func (l *Listener) handle(_ context.Context, n *pgconn.Notification) {
	switch n.Channel {
	case "spotfi_disconnect_job":
		l.logger.Debug("disconnect job notification", zap.String("payload", n.Payload))
		l.worker.Wake()
	case "spotfi_quota_exceeded":
		l.logger.Debug("quota exceeded notification", zap.String("payload", n.Payload))
		l.worker.Wake()
	default:
		l.logger.Debug("unhandled notification channel", zap.String("channel", n.Channel))
	}
}
