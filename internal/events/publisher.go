package events

import (
	"context"
	"fmt"
)

// Publisher provides convenient methods for publishing typed events.
type Publisher struct {
	bus    EventBus
	source string
}

// NewPublisher creates a new Publisher with the given source identifier.
func NewPublisher(bus EventBus, source string) *Publisher {
	if bus == nil {
		panic("bus must not be nil")
	}
	return &Publisher{bus: bus, source: source}
}

// Publish is a generic method to publish any Event.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if err := p.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// PublishRouterStatusChanged publishes a router status change event.
func (p *Publisher) PublishRouterStatusChanged(ctx context.Context, routerID string, status, previousStatus RouterStatus) error {
	if err := p.bus.Publish(ctx, NewRouterStatusChangedEvent(routerID, status, previousStatus, p.source)); err != nil {
		return fmt.Errorf("publish router status changed: %w", err)
	}
	return nil
}

// PublishRouterStatusChangedWithError publishes a router status change event with error details.
func (p *Publisher) PublishRouterStatusChangedWithError(ctx context.Context, routerID string, status, previousStatus RouterStatus, protocol, errorMessage string) error {
	event := NewRouterStatusChangedEvent(routerID, status, previousStatus, p.source)
	event.Protocol = protocol
	event.ErrorMessage = errorMessage
	if err := p.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish router status changed with error: %w", err)
	}
	return nil
}

// PublishRouterConnected publishes a router connection event.
func (p *Publisher) PublishRouterConnected(ctx context.Context, routerID, protocol, version string) error {
	if err := p.bus.Publish(ctx, NewRouterConnectedEvent(routerID, protocol, version, p.source)); err != nil {
		return fmt.Errorf("publish router connected: %w", err)
	}
	return nil
}

// PublishRouterDisconnected publishes a router disconnection event.
func (p *Publisher) PublishRouterDisconnected(ctx context.Context, routerID, reason string) error {
	if err := p.bus.Publish(ctx, NewRouterDisconnectedEvent(routerID, reason, p.source)); err != nil {
		return fmt.Errorf("publish router disconnected: %w", err)
	}
	return nil
}

// PublishAuthLogin publishes a login attempt event.
func (p *Publisher) PublishAuthLogin(ctx context.Context, userID, ipAddress, userAgent string, success bool, failReason string) error {
	if err := p.bus.Publish(ctx, NewAuthEvent(userID, "login", ipAddress, userAgent, success, failReason, p.source)); err != nil {
		return fmt.Errorf("publish auth login: %w", err)
	}
	return nil
}

// PublishAuthLogout publishes a logout event.
func (p *Publisher) PublishAuthLogout(ctx context.Context, userID, ipAddress, userAgent string) error {
	if err := p.bus.Publish(ctx, NewAuthEvent(userID, "logout", ipAddress, userAgent, true, "", p.source)); err != nil {
		return fmt.Errorf("publish auth logout: %w", err)
	}
	return nil
}

// PublishAuthSessionRevoked publishes a session revocation event.
func (p *Publisher) PublishAuthSessionRevoked(ctx context.Context, userID, ipAddress, userAgent string) error {
	event := NewAuthEvent(userID, "session_revoked", ipAddress, userAgent, true, "", p.source)
	event.Type = EventTypeAuthSessionRevoked
	if err := p.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish auth session revoked: %w", err)
	}
	return nil
}

// PublishAuthPasswordChanged publishes a password change event.
func (p *Publisher) PublishAuthPasswordChanged(ctx context.Context, userID, ipAddress, userAgent string) error {
	event := NewAuthEvent(userID, "password_changed", ipAddress, userAgent, true, "", p.source)
	event.Type = EventTypeAuthPasswordChanged
	if err := p.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish auth password changed: %w", err)
	}
	return nil
}

// PublishMetricUpdated publishes a metric update event.
func (p *Publisher) PublishMetricUpdated(ctx context.Context, routerID, metricType string, values map[string]string) error {
	if err := p.bus.Publish(ctx, NewMetricUpdatedEvent(routerID, metricType, values, p.source)); err != nil {
		return fmt.Errorf("publish metric updated: %w", err)
	}
	return nil
}

// PublishLogAppended publishes a log append event.
func (p *Publisher) PublishLogAppended(ctx context.Context, routerID, level, message, topic string) error {
	if err := p.bus.Publish(ctx, NewLogAppendedEvent(routerID, level, message, topic, p.source)); err != nil {
		return fmt.Errorf("publish log appended: %w", err)
	}
	return nil
}

// PublishAlertCreated publishes an operational alert event.
func (p *Publisher) PublishAlertCreated(ctx context.Context, alertID, ruleID, eventType, severity, title, message, deviceID string, channels []string, data map[string]interface{}) error {
	if err := p.bus.Publish(ctx, NewAlertCreatedEvent(alertID, ruleID, eventType, severity, title, message, deviceID, channels, data, p.source)); err != nil {
		return fmt.Errorf("publish alert created: %w", err)
	}
	return nil
}

// PublishQuotaWarning publishes a quota threshold warning for a session.
func (p *Publisher) PublishQuotaWarning(ctx context.Context, sessionID, routerID, planID string, threshold int, usedBytes, limitBytes int64) error {
	if err := p.bus.Publish(ctx, NewQuotaWarningEvent(sessionID, routerID, planID, threshold, usedBytes, limitBytes, p.source)); err != nil {
		return fmt.Errorf("publish quota warning: %w", err)
	}
	return nil
}

// PublishQuotaExceeded publishes a quota-exceeded event, the trigger for the disconnect worker.
func (p *Publisher) PublishQuotaExceeded(ctx context.Context, sessionID, routerID, planID, reason string, usedBytes, limitBytes int64) error {
	if err := p.bus.Publish(ctx, NewQuotaExceededEvent(sessionID, routerID, planID, reason, usedBytes, limitBytes, p.source)); err != nil {
		return fmt.Errorf("publish quota exceeded: %w", err)
	}
	return nil
}

// PublishQuotaReset publishes a quota reset event for a plan.
func (p *Publisher) PublishQuotaReset(ctx context.Context, planID, routerID string, previousUsed int64) error {
	if err := p.bus.Publish(ctx, NewQuotaResetEvent(planID, routerID, previousUsed, p.source)); err != nil {
		return fmt.Errorf("publish quota reset: %w", err)
	}
	return nil
}

// PublishDisconnectJobDispatched publishes a disconnect-queue job dispatch event.
func (p *Publisher) PublishDisconnectJobDispatched(ctx context.Context, jobID, sessionID, routerID, reason string, attempt int) error {
	if err := p.bus.Publish(ctx, NewDisconnectJobEvent(EventTypeDisconnectJobDispatched, jobID, sessionID, routerID, reason, attempt, "", p.source)); err != nil {
		return fmt.Errorf("publish disconnect job dispatched: %w", err)
	}
	return nil
}

// PublishDisconnectJobCompleted publishes a disconnect-queue job success event.
func (p *Publisher) PublishDisconnectJobCompleted(ctx context.Context, jobID, sessionID, routerID, reason string, attempt int) error {
	if err := p.bus.Publish(ctx, NewDisconnectJobEvent(EventTypeDisconnectJobCompleted, jobID, sessionID, routerID, reason, attempt, "", p.source)); err != nil {
		return fmt.Errorf("publish disconnect job completed: %w", err)
	}
	return nil
}

// PublishDisconnectJobFailed publishes a disconnect-queue job failure event.
func (p *Publisher) PublishDisconnectJobFailed(ctx context.Context, jobID, sessionID, routerID, reason string, attempt int, errMsg string) error {
	if err := p.bus.Publish(ctx, NewDisconnectJobEvent(EventTypeDisconnectJobFailed, jobID, sessionID, routerID, reason, attempt, errMsg, p.source)); err != nil {
		return fmt.Errorf("publish disconnect job failed: %w", err)
	}
	return nil
}

// PublishSessionClosed publishes a session-closed event.
func (p *Publisher) PublishSessionClosed(ctx context.Context, sessionID, routerID, userID, reason string, bytesUsed, durationSec int64) error {
	if err := p.bus.Publish(ctx, NewSessionClosedEvent(sessionID, routerID, userID, reason, bytesUsed, durationSec, p.source)); err != nil {
		return fmt.Errorf("publish session closed: %w", err)
	}
	return nil
}

// PublishPlanExpired publishes a plan-expiry event.
func (p *Publisher) PublishPlanExpired(ctx context.Context, planID, planAssignmentID, routerID string) error {
	if err := p.bus.Publish(ctx, NewPlanExpiredEvent(planID, planAssignmentID, routerID, p.source)); err != nil {
		return fmt.Errorf("publish plan expired: %w", err)
	}
	return nil
}

// PublishRPCTimeout publishes an Edge Fabric RPC-timeout event.
func (p *Publisher) PublishRPCTimeout(ctx context.Context, routerID, method, requestID string, timeoutMs int64) error {
	if err := p.bus.Publish(ctx, NewRPCTimeoutEvent(routerID, method, requestID, timeoutMs, p.source)); err != nil {
		return fmt.Errorf("publish rpc timeout: %w", err)
	}
	return nil
}
