package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetActivePlanAssignments returns every ACTIVE plan assignment for a user,
// most recently activated first. A user is allowed at most one ACTIVE
// assignment per plan's quota type in practice, but the store does not
// enforce that invariant — callers needing aggregated quota should use
// GetUserAggregatedQuota instead.
func (s *Store) GetActivePlanAssignments(ctx context.Context, userID string) ([]*PlanAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, plan_id, assigned_at, activated_at, expires_at, data_used, data_quota, status
		FROM plan_assignments
		WHERE user_id = $1 AND status = 'ACTIVE'
		ORDER BY activated_at DESC NULLS LAST`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PlanAssignment
	for rows.Next() {
		var pa PlanAssignment
		if err := rows.Scan(&pa.ID, &pa.UserID, &pa.PlanID, &pa.AssignedAt, &pa.ActivatedAt,
			&pa.ExpiresAt, &pa.DataUsed, &pa.DataQuota, &pa.Status); err != nil {
			return nil, err
		}
		out = append(out, &pa)
	}
	return out, rows.Err()
}

// AggregatedQuota summarizes a user's remaining allowance across all active
// plan assignments, as read by the portal's Access-Request handler.
type AggregatedQuota struct {
	TotalUsed     int64
	TotalQuota    *int64 // nil means at least one assignment is unlimited
	HasActivePlan bool
	NearestExpiry *time.Time
}

// GetUserAggregatedQuota sums data used and quota across a user's active
// plan assignments. A nil TotalQuota means the user has at least one
// unlimited assignment and should never be treated as exhausted.
func (s *Store) GetUserAggregatedQuota(ctx context.Context, userID string) (*AggregatedQuota, error) {
	assignments, err := s.GetActivePlanAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	agg := &AggregatedQuota{HasActivePlan: len(assignments) > 0}
	var totalQuota int64
	unlimited := false
	for _, pa := range assignments {
		agg.TotalUsed += pa.DataUsed
		if pa.DataQuota == nil {
			unlimited = true
		} else {
			totalQuota += *pa.DataQuota
		}
		if pa.ExpiresAt != nil && (agg.NearestExpiry == nil || pa.ExpiresAt.Before(*agg.NearestExpiry)) {
			agg.NearestExpiry = pa.ExpiresAt
		}
	}
	if !unlimited {
		agg.TotalQuota = &totalQuota
	}
	return agg, nil
}

// IsExhausted reports whether TotalUsed has reached or exceeded TotalQuota.
// An unlimited (nil) TotalQuota is never exhausted.
func (q *AggregatedQuota) IsExhausted() bool {
	return q.TotalQuota != nil && q.TotalUsed >= *q.TotalQuota
}

// ExpirePlanAssignments transitions every ACTIVE assignment whose ExpiresAt
// has passed to EXPIRED and enqueues a disconnect job for its user, run
// hourly by the plan-expiry job (spec.md §4.2).
func (s *Store) ExpirePlanAssignments(ctx context.Context, asOf time.Time) (int, error) {
	var count int
	err := WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT u.username FROM plan_assignments pa
			JOIN users u ON u.id = pa.user_id
			WHERE pa.status = 'ACTIVE' AND pa.expires_at IS NOT NULL AND pa.expires_at <= $1`, asOf)
		if err != nil {
			return err
		}
		var userIDs []string
		for rows.Next() {
			var uid string
			if err := rows.Scan(&uid); err != nil {
				rows.Close()
				return err
			}
			userIDs = append(userIDs, uid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE plan_assignments SET status = 'EXPIRED'
			WHERE status = 'ACTIVE' AND expires_at IS NOT NULL AND expires_at <= $1`, asOf); err != nil {
			return err
		}

		for _, uid := range userIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO disconnect_jobs (username, reason) VALUES ($1, 'PLAN_EXPIRED')
				ON CONFLICT (username) WHERE processed = false DO NOTHING`, uid); err != nil {
				return err
			}
		}
		count = len(userIDs)
		return nil
	})
	return count, err
}

// GetPlan returns a plan by id.
func (s *Store) GetPlan(ctx context.Context, id string) (*Plan, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, data_quota_bytes, quota_type, upload_cap_bps, download_cap_bps,
		       session_timeout_sec, idle_timeout_sec, max_concurrent, validity_days, status
		FROM plans WHERE id = $1`, id)
	var p Plan
	err := row.Scan(&p.ID, &p.Name, &p.DataQuotaBytes, &p.QuotaType, &p.UploadCapBps, &p.DownloadCapBps,
		&p.SessionTimeoutSec, &p.IdleTimeoutSec, &p.MaxConcurrent, &p.ValidityDays, &p.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, NotFound("Plan", id)
		}
		return nil, err
	}
	return &p, nil
}
