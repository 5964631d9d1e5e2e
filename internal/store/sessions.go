package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetOpenSessionsForUser returns every accounting row for username that has
// not yet been closed (AcctStopTime nil). A user may have more than one open
// session when MaxConcurrent on their plan allows it.
func (s *Store) GetOpenSessionsForUser(ctx context.Context, username string) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT acct_unique_id, session_id, username, router_id, nas_ip_address,
		       calling_station_id, framed_ip_address, acct_start_time, acct_update_time,
		       acct_stop_time, acct_input_octets, acct_output_octets, acct_terminate_cause
		FROM sessions WHERE username = $1 AND acct_stop_time IS NULL`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// GetStaleSessions returns open sessions whose last accounting-interim update
// is older than staleSince, the stale-session sweeper's input (spec.md §4.2,
// sweep interval 5min, staleness threshold 10min).
func (s *Store) GetStaleSessions(ctx context.Context, staleSince time.Time) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT acct_unique_id, session_id, username, router_id, nas_ip_address,
		       calling_station_id, framed_ip_address, acct_start_time, acct_update_time,
		       acct_stop_time, acct_input_octets, acct_output_octets, acct_terminate_cause
		FROM sessions WHERE acct_stop_time IS NULL AND acct_update_time < $1`, staleSince)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// GetOpenSessionsForRouter returns every open accounting row attributed to
// routerID, the reconciler's RS-side view of "what this router is supposed
// to be serving right now" (spec.md §4.2's router reconciliation diff).
func (s *Store) GetOpenSessionsForRouter(ctx context.Context, routerID string) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT acct_unique_id, session_id, username, router_id, nas_ip_address,
		       calling_station_id, framed_ip_address, acct_start_time, acct_update_time,
		       acct_stop_time, acct_input_octets, acct_output_octets, acct_terminate_cause
		FROM sessions WHERE router_id = $1 AND acct_stop_time IS NULL`, routerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows pgx.Rows) ([]*Session, error) {
	var out []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.AcctUniqueID, &sess.SessionID, &sess.Username, &sess.RouterID,
			&sess.NASIPAddress, &sess.CallingStationID, &sess.FramedIPAddress, &sess.AcctStartTime,
			&sess.AcctUpdateTime, &sess.AcctStopTime, &sess.AcctInputOctets, &sess.AcctOutputOctets,
			&sess.AcctTerminateCause); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// CloseSession marks a session closed with the given terminate cause. This
// is a plain write: the byte-counter triggers that react to it (and may
// enqueue a disconnect job) live in migrations/, not here.
func (s *Store) CloseSession(ctx context.Context, acctUniqueID, terminateCause string, stopTime time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET acct_stop_time = $1, acct_terminate_cause = $2, acct_update_time = $1
		WHERE acct_unique_id = $3 AND acct_stop_time IS NULL`, stopTime, terminateCause, acctUniqueID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFound("Session", acctUniqueID)
	}
	return nil
}

// UpdateSessionInterim applies an interim-update accounting record:
// refreshed octet counters and update timestamp. The underlying trigger
// folds the delta into the period usage counter and, if the new total
// crosses the assigned plan's quota, enqueues a disconnect job.
func (s *Store) UpdateSessionInterim(ctx context.Context, acctUniqueID string, inputOctets, outputOctets int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET acct_input_octets = $1, acct_output_octets = $2, acct_update_time = $3
		WHERE acct_unique_id = $4 AND acct_stop_time IS NULL`, inputOctets, outputOctets, at, acctUniqueID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFound("Session", acctUniqueID)
	}
	return nil
}

// OpenSession inserts a new accounting row for an Access-Accept'd session.
func (s *Store) OpenSession(ctx context.Context, sess *Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (acct_unique_id, session_id, username, router_id, nas_ip_address,
		                       calling_station_id, framed_ip_address, acct_start_time, acct_update_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		sess.AcctUniqueID, sess.SessionID, sess.Username, sess.RouterID, sess.NASIPAddress,
		sess.CallingStationID, sess.FramedIPAddress, sess.AcctStartTime)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return Duplicate("Session", "acct_unique_id", sess.AcctUniqueID)
		}
		return err
	}
	return nil
}
