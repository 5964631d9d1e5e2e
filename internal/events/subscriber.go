package events

import (
	"context"
)

// TypedEventHandler is a handler for a specific event type.
type TypedEventHandler[T Event] func(ctx context.Context, event T) error

// SubscribableEventBus extends EventBus with typed subscription helpers.
type SubscribableEventBus interface {
	EventBus

	// Typed subscription helpers
	OnRouterStatusChanged(handler func(ctx context.Context, event *RouterStatusChangedEvent) error) error
	OnAuth(handler func(ctx context.Context, event *AuthEvent) error) error
	OnRouterConnected(handler func(ctx context.Context, event *RouterConnectedEvent) error) error
	OnRouterDisconnected(handler func(ctx context.Context, event *RouterDisconnectedEvent) error) error
	OnQuotaExceeded(handler func(ctx context.Context, event *QuotaExceededEvent) error) error
	OnDisconnectJob(handler func(ctx context.Context, event *DisconnectJobEvent) error) error
	OnSessionClosed(handler func(ctx context.Context, event *SessionClosedEvent) error) error
	OnPlanExpired(handler func(ctx context.Context, event *PlanExpiredEvent) error) error
	OnRPCTimeout(handler func(ctx context.Context, event *RPCTimeoutEvent) error) error

	// Filtered subscriptions
	OnRouterStatusChangedFor(routerID string, handler func(ctx context.Context, event *RouterStatusChangedEvent) error) error
	OnQuotaExceededFor(routerID string, handler func(ctx context.Context, event *QuotaExceededEvent) error) error
}

// subscribableEventBus wraps eventBus with typed subscription helpers.
type subscribableEventBus struct {
	*eventBus
}

// NewSubscribableEventBus creates an EventBus with typed subscription helpers.
func NewSubscribableEventBus(opts EventBusOptions) (SubscribableEventBus, error) {
	bus, err := NewEventBus(opts)
	if err != nil {
		return nil, err
	}

	eb, ok := bus.(*eventBus)
	if !ok {
		return nil, err
	}

	return &subscribableEventBus{eventBus: eb}, nil
}

// OnRouterStatusChanged subscribes to router status change events.
func (eb *subscribableEventBus) OnRouterStatusChanged(handler func(ctx context.Context, event *RouterStatusChangedEvent) error) error {
	return eb.Subscribe(EventTypeRouterStatusChanged, func(ctx context.Context, event Event) error {
		if typed, ok := event.(*RouterStatusChangedEvent); ok {
			return handler(ctx, typed)
		}
		return nil
	})
}

// OnAuth subscribes to authentication events.
func (eb *subscribableEventBus) OnAuth(handler func(ctx context.Context, event *AuthEvent) error) error {
	wrapper := func(ctx context.Context, event Event) error {
		if typed, ok := event.(*AuthEvent); ok {
			return handler(ctx, typed)
		}
		return nil
	}

	if err := eb.Subscribe(EventTypeAuth, wrapper); err != nil {
		return err
	}
	if err := eb.Subscribe(EventTypeAuthSessionRevoked, wrapper); err != nil {
		return err
	}
	return eb.Subscribe(EventTypeAuthPasswordChanged, wrapper)
}

// OnRouterConnected subscribes to router connection events.
func (eb *subscribableEventBus) OnRouterConnected(handler func(ctx context.Context, event *RouterConnectedEvent) error) error {
	return eb.Subscribe(EventTypeRouterConnected, func(ctx context.Context, event Event) error {
		if typed, ok := event.(*RouterConnectedEvent); ok {
			return handler(ctx, typed)
		}
		return nil
	})
}

// OnRouterDisconnected subscribes to router disconnection events.
func (eb *subscribableEventBus) OnRouterDisconnected(handler func(ctx context.Context, event *RouterDisconnectedEvent) error) error {
	return eb.Subscribe(EventTypeRouterDisconnected, func(ctx context.Context, event Event) error {
		if typed, ok := event.(*RouterDisconnectedEvent); ok {
			return handler(ctx, typed)
		}
		return nil
	})
}

// OnQuotaExceeded subscribes to quota-exceeded events, the signal the disconnect worker acts on.
func (eb *subscribableEventBus) OnQuotaExceeded(handler func(ctx context.Context, event *QuotaExceededEvent) error) error {
	return eb.Subscribe(EventTypeQuotaExceeded, func(ctx context.Context, event Event) error {
		if typed, ok := event.(*QuotaExceededEvent); ok {
			return handler(ctx, typed)
		}
		return nil
	})
}

// OnDisconnectJob subscribes to all disconnect-queue job lifecycle events.
func (eb *subscribableEventBus) OnDisconnectJob(handler func(ctx context.Context, event *DisconnectJobEvent) error) error {
	wrapper := func(ctx context.Context, event Event) error {
		if typed, ok := event.(*DisconnectJobEvent); ok {
			return handler(ctx, typed)
		}
		return nil
	}

	if err := eb.Subscribe(EventTypeDisconnectJobDispatched, wrapper); err != nil {
		return err
	}
	if err := eb.Subscribe(EventTypeDisconnectJobCompleted, wrapper); err != nil {
		return err
	}
	return eb.Subscribe(EventTypeDisconnectJobFailed, wrapper)
}

// OnSessionClosed subscribes to session-closed events.
func (eb *subscribableEventBus) OnSessionClosed(handler func(ctx context.Context, event *SessionClosedEvent) error) error {
	return eb.Subscribe(EventTypeSessionClosed, func(ctx context.Context, event Event) error {
		if typed, ok := event.(*SessionClosedEvent); ok {
			return handler(ctx, typed)
		}
		return nil
	})
}

// OnPlanExpired subscribes to plan-expiry events.
func (eb *subscribableEventBus) OnPlanExpired(handler func(ctx context.Context, event *PlanExpiredEvent) error) error {
	return eb.Subscribe(EventTypePlanExpired, func(ctx context.Context, event Event) error {
		if typed, ok := event.(*PlanExpiredEvent); ok {
			return handler(ctx, typed)
		}
		return nil
	})
}

// OnRPCTimeout subscribes to Edge Fabric RPC-timeout events.
func (eb *subscribableEventBus) OnRPCTimeout(handler func(ctx context.Context, event *RPCTimeoutEvent) error) error {
	return eb.Subscribe(EventTypeRPCTimeout, func(ctx context.Context, event Event) error {
		if typed, ok := event.(*RPCTimeoutEvent); ok {
			return handler(ctx, typed)
		}
		return nil
	})
}

// OnRouterStatusChangedFor subscribes to router status changes for a specific router.
func (eb *subscribableEventBus) OnRouterStatusChangedFor(routerID string, handler func(ctx context.Context, event *RouterStatusChangedEvent) error) error {
	return eb.Subscribe(EventTypeRouterStatusChanged, func(ctx context.Context, event Event) error {
		if typed, ok := event.(*RouterStatusChangedEvent); ok {
			if typed.RouterID == routerID {
				return handler(ctx, typed)
			}
		}
		return nil
	})
}

// OnQuotaExceededFor subscribes to quota-exceeded events for a specific router.
func (eb *subscribableEventBus) OnQuotaExceededFor(routerID string, handler func(ctx context.Context, event *QuotaExceededEvent) error) error {
	return eb.Subscribe(EventTypeQuotaExceeded, func(ctx context.Context, event Event) error {
		if typed, ok := event.(*QuotaExceededEvent); ok {
			if typed.RouterID == routerID {
				return handler(ctx, typed)
			}
		}
		return nil
	})
}
