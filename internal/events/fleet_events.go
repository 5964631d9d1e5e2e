package events

import "encoding/json"

// =============================================================================
// Quota Events
// =============================================================================

// QuotaWarningEvent is emitted when a session's usage counter crosses a
// warning threshold (80% or 90% of its plan allowance).
type QuotaWarningEvent struct {
	BaseEvent
	SessionID  string `json:"sessionId"`
	RouterID   string `json:"routerId"`
	PlanID     string `json:"planId"`
	Threshold  int    `json:"threshold"`
	UsedBytes  int64  `json:"usedBytes"`
	LimitBytes int64  `json:"limitBytes"`
}

func (e *QuotaWarningEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewQuotaWarningEvent(sessionID, routerID, planID string, threshold int, usedBytes, limitBytes int64, source string) *QuotaWarningEvent {
	eventType := EventTypeQuotaWarning80
	if threshold >= 90 {
		eventType = EventTypeQuotaWarning90
	}
	return &QuotaWarningEvent{
		BaseEvent:  NewBaseEvent(eventType, PriorityNormal, source),
		SessionID:  sessionID,
		RouterID:   routerID,
		PlanID:     planID,
		Threshold:  threshold,
		UsedBytes:  usedBytes,
		LimitBytes: limitBytes,
	}
}

// QuotaExceededEvent is emitted the moment a usage counter trigger observes a
// session crossing its plan's byte or time allowance. This is the event the
// disconnect worker reacts to.
type QuotaExceededEvent struct {
	BaseEvent
	SessionID  string `json:"sessionId"`
	RouterID   string `json:"routerId"`
	PlanID     string `json:"planId"`
	Reason     string `json:"reason"` // "bytes" or "duration"
	UsedBytes  int64  `json:"usedBytes"`
	LimitBytes int64  `json:"limitBytes"`
}

func (e *QuotaExceededEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewQuotaExceededEvent(sessionID, routerID, planID, reason string, usedBytes, limitBytes int64, source string) *QuotaExceededEvent {
	return &QuotaExceededEvent{
		BaseEvent:  NewBaseEvent(EventTypeQuotaExceeded, PriorityImmediate, source),
		SessionID:  sessionID,
		RouterID:   routerID,
		PlanID:     planID,
		Reason:     reason,
		UsedBytes:  usedBytes,
		LimitBytes: limitBytes,
	}
}

// QuotaResetEvent is emitted when a plan's usage counter is reset at the
// start of a new billing/allowance period.
type QuotaResetEvent struct {
	BaseEvent
	PlanID       string `json:"planId"`
	RouterID     string `json:"routerId"`
	PreviousUsed int64  `json:"previousUsedBytes"`
}

func (e *QuotaResetEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewQuotaResetEvent(planID, routerID string, previousUsed int64, source string) *QuotaResetEvent {
	return &QuotaResetEvent{
		BaseEvent:    NewBaseEvent(EventTypeQuotaReset, PriorityNormal, source),
		PlanID:       planID,
		RouterID:     routerID,
		PreviousUsed: previousUsed,
	}
}

// =============================================================================
// Disconnect-queue Events
// =============================================================================

// DisconnectJobEvent tracks the lifecycle of a disconnect-queue job as the
// QSE disconnect worker dispatches a RADIUS Disconnect-Request / RPC
// kick-session call to the edge router that owns a session.
type DisconnectJobEvent struct {
	BaseEvent
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId"`
	RouterID  string `json:"routerId"`
	Reason    string `json:"reason"`
	Attempt   int    `json:"attempt"`
	Error     string `json:"error,omitempty"`
}

func (e *DisconnectJobEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewDisconnectJobEvent(eventType, jobID, sessionID, routerID, reason string, attempt int, errMsg, source string) *DisconnectJobEvent {
	priority := PriorityCritical
	if eventType == EventTypeDisconnectJobFailed {
		priority = PriorityImmediate
	}
	return &DisconnectJobEvent{
		BaseEvent: NewBaseEvent(eventType, priority, source),
		JobID:     jobID,
		SessionID: sessionID,
		RouterID:  routerID,
		Reason:    reason,
		Attempt:   attempt,
		Error:     errMsg,
	}
}

// =============================================================================
// Session Events
// =============================================================================

// SessionClosedEvent is emitted when a portal/RADIUS session ends, whether by
// user logout, quota exhaustion, idle sweep, or router disconnect.
type SessionClosedEvent struct {
	BaseEvent
	SessionID   string `json:"sessionId"`
	RouterID    string `json:"routerId"`
	UserID      string `json:"userId,omitempty"`
	Reason      string `json:"reason"`
	BytesUsed   int64  `json:"bytesUsed"`
	DurationSec int64  `json:"durationSeconds"`
}

func (e *SessionClosedEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewSessionClosedEvent(sessionID, routerID, userID, reason string, bytesUsed, durationSec int64, source string) *SessionClosedEvent {
	return &SessionClosedEvent{
		BaseEvent:   NewBaseEvent(EventTypeSessionClosed, PriorityNormal, source),
		SessionID:   sessionID,
		RouterID:    routerID,
		UserID:      userID,
		Reason:      reason,
		BytesUsed:   bytesUsed,
		DurationSec: durationSec,
	}
}

// =============================================================================
// Plan Events
// =============================================================================

// PlanExpiredEvent describes a plan assignment whose validity window has
// elapsed. The hourly plan-expiry job in internal/qse does not publish it.
type PlanExpiredEvent struct {
	BaseEvent
	PlanID           string `json:"planId"`
	PlanAssignmentID string `json:"planAssignmentId"`
	RouterID         string `json:"routerId"`
}

func (e *PlanExpiredEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewPlanExpiredEvent(planID, planAssignmentID, routerID, source string) *PlanExpiredEvent {
	return &PlanExpiredEvent{
		BaseEvent:        NewBaseEvent(EventTypePlanExpired, PriorityNormal, source),
		PlanID:           planID,
		PlanAssignmentID: planAssignmentID,
		RouterID:         routerID,
	}
}

// =============================================================================
// Edge Fabric RPC Events
// =============================================================================

// RPCTimeoutEvent is emitted when an Edge Fabric JSON-RPC call to a router
// fails to receive a response within its deadline.
type RPCTimeoutEvent struct {
	BaseEvent
	RouterID  string `json:"routerId"`
	Method    string `json:"method"`
	RequestID string `json:"requestId"`
	TimeoutMs int64  `json:"timeoutMs"`
}

func (e *RPCTimeoutEvent) Payload() ([]byte, error) { return json.Marshal(e) }

func NewRPCTimeoutEvent(routerID, method, requestID string, timeoutMs int64, source string) *RPCTimeoutEvent {
	return &RPCTimeoutEvent{
		BaseEvent: NewBaseEvent(EventTypeRPCTimeout, PriorityImmediate, source),
		RouterID:  routerID,
		Method:    method,
		RequestID: requestID,
		TimeoutMs: timeoutMs,
	}
}
