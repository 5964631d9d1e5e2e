package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// GetPendingDisconnectJobs returns up to limit unprocessed disconnect jobs,
// oldest first. Rows are selected FOR UPDATE SKIP LOCKED so multiple worker
// instances can drain the queue concurrently without double-processing a row.
func (s *Store) GetPendingDisconnectJobs(ctx context.Context, limit int) ([]*DisconnectJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, reason, created_at, processed, processed_at
		FROM disconnect_jobs
		WHERE processed = false
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DisconnectJob
	for rows.Next() {
		var j DisconnectJob
		if err := rows.Scan(&j.ID, &j.Username, &j.Reason, &j.CreatedAt, &j.Processed, &j.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

// MarkDisconnectJobProcessed flags a job done once the worker has dispatched
// it successfully. A job whose retries are exhausted is not marked and stays
// pending for a later drain.
func (s *Store) MarkDisconnectJobProcessed(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE disconnect_jobs SET processed = true, processed_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFound("DisconnectJob", id)
	}
	return nil
}

// EnqueueDisconnectJob inserts a disconnect job directly. Nothing in the
// module calls it: ExpirePlanAssignments inserts its PLAN_EXPIRED rows inside
// its own transaction, and the quota-exhaustion path relies on the trigger
// fired by UpdateSessionInterim.
func (s *Store) EnqueueDisconnectJob(ctx context.Context, username string, reason DisconnectReason) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO disconnect_jobs (username, reason) VALUES ($1, $2)`, username, reason)
	return err
}

// UpsertRadiusReject inserts or refreshes an Auth-Type := Reject row in
// radcheck for username, causing the next Access-Request to be rejected
// without waiting for a live CoA round-trip to land.
func (s *Store) UpsertRadiusReject(ctx context.Context, username string) error {
	return WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM radcheck WHERE username = $1 AND attribute = 'Auth-Type'`, username)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO radcheck (username, attribute, op, value) VALUES ($1, 'Auth-Type', ':=', 'Reject')`, username)
		return err
	})
}

// ClearRadiusReject removes a standing Auth-Type Reject rule, e.g. after a
// plan renewal restores quota.
func (s *Store) ClearRadiusReject(ctx context.Context, username string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM radcheck WHERE username = $1 AND attribute = 'Auth-Type' AND value = 'Reject'`, username)
	return err
}
