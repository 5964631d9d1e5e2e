// Package store is the pgx-backed Relational Store client: routers, users,
// plans, plan assignments, accounting sessions, usage counters, and the
// disconnect work queue (SPEC_FULL.md §3). Aggregation is done entirely by
// PL/pgSQL triggers shipped under migrations/; this package only reads
// derived state and writes the rows the triggers react to.
package store

import (
	"time"
)

// RouterStatus is a router's connection state as tracked in the Relational Store.
type RouterStatus string

const (
	RouterStatusOnline  RouterStatus = "ONLINE"
	RouterStatusOffline RouterStatus = "OFFLINE"
	RouterStatusError   RouterStatus = "ERROR"
)

// Router is an access point in the fleet.
type Router struct {
	ID           string
	Token        string // bearer credential for broker auth, unique
	RadiusSecret string
	UAMSecret    string // hex string
	MACAddress   string // normalized uppercase, no separators
	NASIPAddress string
	Name         string
	HostID       string
	Status       RouterStatus
	LastSeen     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserStatus is an end-user account's lifecycle state.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
	UserStatusExpired   UserStatus = "EXPIRED"
)

// User is an end-user who authenticates through the captive portal.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// QuotaType is the period over which a plan's data quota resets.
type QuotaType string

const (
	QuotaTypeMonthly QuotaType = "MONTHLY"
	QuotaTypeDaily   QuotaType = "DAILY"
	QuotaTypeWeekly  QuotaType = "WEEKLY"
	QuotaTypeOneTime QuotaType = "ONE_TIME"
)

// Plan is a catalog entry describing quota and throughput limits.
type Plan struct {
	ID                string
	Name              string
	DataQuotaBytes    *int64 // nil = unlimited
	QuotaType         QuotaType
	UploadCapBps      *int64
	DownloadCapBps    *int64
	SessionTimeoutSec *int64
	IdleTimeoutSec    *int64
	MaxConcurrent     int
	ValidityDays      int
	Status            string
}

// PlanAssignmentStatus is the lifecycle state of a user's binding to a plan.
type PlanAssignmentStatus string

const (
	PlanAssignmentPending   PlanAssignmentStatus = "PENDING"
	PlanAssignmentActive    PlanAssignmentStatus = "ACTIVE"
	PlanAssignmentExpired   PlanAssignmentStatus = "EXPIRED"
	PlanAssignmentCancelled PlanAssignmentStatus = "CANCELLED"
)

// PlanAssignment binds a user to a plan (called UserPlan in spec.md).
type PlanAssignment struct {
	ID          string
	UserID      string
	PlanID      string
	AssignedAt  time.Time
	ActivatedAt *time.Time
	ExpiresAt   *time.Time
	DataUsed    int64
	DataQuota   *int64 // snapshot at assignment, may override plan default
	Status      PlanAssignmentStatus
}

// Session is an immutable RADIUS accounting record. AcctStopTime is nil
// while the session is active.
type Session struct {
	AcctUniqueID       string
	SessionID          string
	Username           string
	RouterID           *string
	NASIPAddress       string
	CallingStationID   string // client MAC
	FramedIPAddress    string
	AcctStartTime      time.Time
	AcctUpdateTime     time.Time
	AcctStopTime       *time.Time
	AcctInputOctets    int64
	AcctOutputOctets   int64
	AcctTerminateCause string
}

// IsOpen reports whether the session has not yet been closed.
func (s *Session) IsOpen() bool { return s.AcctStopTime == nil }

// UsageCounter is the per-(username, period) byte aggregate maintained by
// triggers on accounting-row close.
type UsageCounter struct {
	Username   string
	PeriodKey  string
	TotalBytes int64
	UpdatedAt  time.Time
}

// RouterDailyUsage is the per-(router, date) byte aggregate maintained by
// triggers, replacing live mutation of a single running total column.
type RouterDailyUsage struct {
	RouterID   string
	Date       time.Time
	TotalBytes int64
}

// DisconnectReason identifies why a disconnect job was enqueued.
type DisconnectReason string

const (
	DisconnectReasonQuotaExceeded DisconnectReason = "QUOTA_EXCEEDED"
	DisconnectReasonPlanExpired   DisconnectReason = "PLAN_EXPIRED"
)

// DisconnectJob is a row in the durable disconnect work queue, inserted by
// triggers and consumed exactly-once (best-effort) by a worker.
type DisconnectJob struct {
	ID          int64
	Username    string
	Reason      DisconnectReason
	CreatedAt   time.Time
	Processed   bool
	ProcessedAt *time.Time
}
