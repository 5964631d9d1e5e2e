package events

import (
	"encoding/json"
)

// =============================================================================
// Router Events
// =============================================================================

// RouterStatusChangedEvent is emitted when a router's connection status changes.
type RouterStatusChangedEvent struct {
	BaseEvent
	RouterID       string       `json:"routerId"`
	Status         RouterStatus `json:"status"`
	PreviousStatus RouterStatus `json:"previousStatus"`
	Protocol       string       `json:"protocol,omitempty"`
	ErrorMessage   string       `json:"errorMessage,omitempty"`
}

func (e *RouterStatusChangedEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewRouterStatusChangedEvent(routerID string, status, previousStatus RouterStatus, source string) *RouterStatusChangedEvent {
	return &RouterStatusChangedEvent{
		BaseEvent:      NewBaseEvent(EventTypeRouterStatusChanged, PriorityImmediate, source),
		RouterID:       routerID,
		Status:         status,
		PreviousStatus: previousStatus,
	}
}

// RouterConnectedEvent is emitted when a router connection is established.
type RouterConnectedEvent struct {
	BaseEvent
	RouterID string `json:"routerId"`
	Protocol string `json:"protocol"`
	Version  string `json:"version,omitempty"`
}

func (e *RouterConnectedEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewRouterConnectedEvent(routerID, protocol, version, source string) *RouterConnectedEvent {
	return &RouterConnectedEvent{
		BaseEvent: NewBaseEvent(EventTypeRouterConnected, PriorityNormal, source),
		RouterID:  routerID,
		Protocol:  protocol,
		Version:   version,
	}
}

// RouterDisconnectedEvent is emitted when a router connection is lost.
type RouterDisconnectedEvent struct {
	BaseEvent
	RouterID string `json:"routerId"`
	Reason   string `json:"reason,omitempty"`
}

func (e *RouterDisconnectedEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewRouterDisconnectedEvent(routerID, reason, source string) *RouterDisconnectedEvent {
	return &RouterDisconnectedEvent{
		BaseEvent: NewBaseEvent(EventTypeRouterDisconnected, PriorityNormal, source),
		RouterID:  routerID,
		Reason:    reason,
	}
}

// =============================================================================
// Auth Events
// =============================================================================

// AuthEvent is emitted for authentication-related actions (for security audit).
type AuthEvent struct {
	BaseEvent
	UserID     string `json:"userId,omitempty"`
	Action     string `json:"action"`
	IPAddress  string `json:"ipAddress"`
	UserAgent  string `json:"userAgent"`
	Success    bool   `json:"success"`
	FailReason string `json:"failReason,omitempty"`
}

func (e *AuthEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewAuthEvent(userID, action, ipAddress, userAgent string, success bool, failReason, source string) *AuthEvent {
	priority := PriorityCritical
	if !success || action == "session_revoked" || action == "password_changed" {
		priority = PriorityImmediate
	}
	return &AuthEvent{
		BaseEvent:  NewBaseEvent(EventTypeAuth, priority, source),
		UserID:     userID,
		Action:     action,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Success:    success,
		FailReason: failReason,
	}
}

// =============================================================================
// Alert Events
// =============================================================================

// AlertCreatedEvent is emitted when an alert is created and saved to the database.
type AlertCreatedEvent struct {
	BaseEvent
	AlertID   string                 `json:"alertId"`
	RuleID    string                 `json:"ruleId"`
	EventType string                 `json:"eventType"`
	Severity  string                 `json:"severity"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	DeviceID  string                 `json:"deviceId,omitempty"`
	Channels  []string               `json:"channels"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

func (e *AlertCreatedEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewAlertCreatedEvent(
	alertID, ruleID, eventType, severity, title, message, deviceID string,
	channels []string, data map[string]interface{}, source string,
) *AlertCreatedEvent {

	return &AlertCreatedEvent{
		BaseEvent: NewBaseEvent(EventTypeAlertCreated, PriorityCritical, source),
		AlertID:   alertID,
		RuleID:    ruleID,
		EventType: eventType,
		Severity:  severity,
		Title:     title,
		Message:   message,
		DeviceID:  deviceID,
		Channels:  channels,
		Data:      data,
	}
}

// =============================================================================
// Telemetry Events
// =============================================================================

// MetricUpdatedEvent is emitted when metrics are collected.
type MetricUpdatedEvent struct {
	BaseEvent
	RouterID   string            `json:"routerId"`
	MetricType string            `json:"metricType"`
	Values     map[string]string `json:"values"`
}

func (e *MetricUpdatedEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewMetricUpdatedEvent(routerID, metricType string, values map[string]string, source string) *MetricUpdatedEvent {
	return &MetricUpdatedEvent{
		BaseEvent:  NewBaseEvent(EventTypeMetricUpdated, PriorityBackground, source),
		RouterID:   routerID,
		MetricType: metricType,
		Values:     values,
	}
}

// LogAppendedEvent is emitted when a log entry is added.
type LogAppendedEvent struct {
	BaseEvent
	RouterID string `json:"routerId"`
	Level    string `json:"level"`
	Message  string `json:"message"`
	Topic    string `json:"topic,omitempty"`
}

func (e *LogAppendedEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewLogAppendedEvent(routerID, level, message, topic, source string) *LogAppendedEvent {
	return &LogAppendedEvent{
		BaseEvent: NewBaseEvent(EventTypeLogAppended, PriorityBackground, source),
		RouterID:  routerID,
		Level:     level,
		Message:   message,
		Topic:     topic,
	}
}
