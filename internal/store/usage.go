package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// ListUsageCountersUpdatedSince returns every usage_counters row touched on
// or after since, the source data the invoicing hand-off job hands to the
// external billing collaborator (SPEC_FULL.md §7, spec.md §1's invoicing
// non-goal: we publish the aggregate, we do not generate the invoice).
func (s *Store) ListUsageCountersUpdatedSince(ctx context.Context, since time.Time) ([]*UsageCounter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT username, period_key, total_bytes, updated_at
		FROM usage_counters
		WHERE updated_at >= $1
		ORDER BY username`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UsageCounter
	for rows.Next() {
		var uc UsageCounter
		if err := rows.Scan(&uc.Username, &uc.PeriodKey, &uc.TotalBytes, &uc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &uc)
	}
	return out, rows.Err()
}

// ListRouterDailyUsageSince returns router_daily_usage rows for dates on or
// after since, the source the daily-usage materializer snapshots into
// router_daily_usage_summary for fleet dashboards.
func (s *Store) ListRouterDailyUsageSince(ctx context.Context, since time.Time) ([]*RouterDailyUsage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT router_id, date, total_bytes
		FROM router_daily_usage
		WHERE date >= $1
		ORDER BY router_id, date`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RouterDailyUsage
	for rows.Next() {
		var u RouterDailyUsage
		if err := rows.Scan(&u.RouterID, &u.Date, &u.TotalBytes); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// UpsertRouterDailyUsageSummary writes rows into the read-optimized
// router_daily_usage_summary table dashboards query directly, so they never
// scan the trigger-maintained router_daily_usage table under load.
func (s *Store) UpsertRouterDailyUsageSummary(ctx context.Context, rows []*RouterDailyUsage) error {
	if len(rows) == 0 {
		return nil
	}
	return WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO router_daily_usage_summary (router_id, date, total_bytes, materialized_at)
				VALUES ($1, $2, $3, now())
				ON CONFLICT (router_id, date) DO UPDATE
				SET total_bytes = EXCLUDED.total_bytes, materialized_at = EXCLUDED.materialized_at`,
				r.RouterID, r.Date, r.TotalBytes); err != nil {
				return err
			}
		}
		return nil
	})
}
