package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetRouter returns a router by id.
func (s *Store) GetRouter(ctx context.Context, id string) (*Router, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, token, radius_secret, uam_secret, mac_address, nas_ip_address,
		       name, host_id, status, last_seen, created_at, updated_at
		FROM routers WHERE id = $1`, id)
	return scanRouter(row, "Router", id)
}

// GetRouterByMAC resolves a router by its normalized MAC address. Callers
// must normalize the input first (see NormalizeMAC); this is the most
// reliable resolution path for UAM requests (spec.md §4.3).
func (s *Store) GetRouterByMAC(ctx context.Context, mac string) (*Router, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, token, radius_secret, uam_secret, mac_address, nas_ip_address,
		       name, host_id, status, last_seen, created_at, updated_at
		FROM routers WHERE mac_address = $1`, mac)
	return scanRouter(row, "Router", mac)
}

// GetRouterByNormalizedName resolves a router whose normalized name exactly
// or substring-matches the given normalized value. Used as the second-tier
// identity resolution fallback after MAC lookup fails.
func (s *Store) GetRouterByNormalizedName(ctx context.Context, normalizedName string) (*Router, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, token, radius_secret, uam_secret, mac_address, nas_ip_address,
		       name, host_id, status, last_seen, created_at, updated_at
		FROM routers
		WHERE lower(regexp_replace(name, '[^a-zA-Z0-9]', '', 'g')) = $1
		   OR lower(regexp_replace(name, '[^a-zA-Z0-9]', '', 'g')) LIKE '%' || $1 || '%'
		ORDER BY length(name) ASC
		LIMIT 1`, normalizedName)
	return scanRouter(row, "Router", normalizedName)
}

// GetRouterByNASIP resolves a router by its last-known NAS IP address, the
// third and weakest identity-resolution tier.
func (s *Store) GetRouterByNASIP(ctx context.Context, nasIP string) (*Router, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, token, radius_secret, uam_secret, mac_address, nas_ip_address,
		       name, host_id, status, last_seen, created_at, updated_at
		FROM routers WHERE nas_ip_address = $1`, nasIP)
	return scanRouter(row, "Router", nasIP)
}

func scanRouter(row pgx.Row, entity string, key interface{}) (*Router, error) {
	var r Router
	err := row.Scan(&r.ID, &r.Token, &r.RadiusSecret, &r.UAMSecret, &r.MACAddress,
		&r.NASIPAddress, &r.Name, &r.HostID, &r.Status, &r.LastSeen, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFound(entity, key)
		}
		return nil, err
	}
	return &r, nil
}

// UpsertRouterStatusBatch applies merged status/lastSeen writes for a batch
// of routers in a single statement, matching the presence pipeline's "merged
// writes every N seconds, never on every heartbeat" policy (spec.md §5).
func (s *Store) UpsertRouterStatusBatch(ctx context.Context, updates map[string]RouterStatus, seenAt time.Time) error {
	if len(updates) == 0 {
		return nil
	}
	return WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for id, status := range updates {
			batch.Queue(`UPDATE routers SET status = $1, last_seen = $2, updated_at = now() WHERE id = $3`,
				status, seenAt, id)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range updates {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListOnlineRouterIDs returns the ids of every router RS currently believes
// is ONLINE, the presence sweeper's input set for detecting ES TTL expiry
// (spec.md §4.1's "periodic sweeper promotes the router to OFFLINE in RS").
func (s *Store) ListOnlineRouterIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM routers WHERE status = $1`, RouterStatusOnline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EnsureRadiusClient upserts the NAS row the RADIUS service reads for this
// router, keyed by IP and/or name, per the presence pipeline's ONLINE
// handling (spec.md §4.1).
func (s *Store) EnsureRadiusClient(ctx context.Context, r *Router) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO nas (nasname, shortname, secret, type)
		VALUES ($1, $2, $3, 'other')
		ON CONFLICT (nasname) DO UPDATE SET secret = EXCLUDED.secret, shortname = EXCLUDED.shortname`,
		r.NASIPAddress, r.Name, r.RadiusSecret)
	return err
}

// NormalizeMAC uppercases a MAC address and strips separators, matching the
// normalization applied to Router.MACAddress at write time.
func NormalizeMAC(mac string) string {
	var b strings.Builder
	for _, r := range mac {
		switch r {
		case ':', '-', '.', ' ':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}

// NormalizeRouterName lowercases a router name and strips all non-alphanumerics,
// matching the normalization the second-tier identity resolution applies.
func NormalizeRouterName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
