package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spotfi/spotfi-cloud/internal/auth"
)

// OperatorUserRepository adapts the Relational Store's operator_accounts
// table to auth.UserRepository, so the x-tunnel/admin API's JWT login flow
// runs against Postgres instead of an in-memory fake.
type OperatorUserRepository struct {
	store *Store
}

// NewOperatorUserRepository wraps s for use as an auth.UserRepository.
func NewOperatorUserRepository(s *Store) *OperatorUserRepository {
	return &OperatorUserRepository{store: s}
}

const operatorColumns = `id, username, email, display_name, password_hash,
	role, active, mfa_enabled, last_login, password_changed, created_at, updated_at`

func scanOperator(row pgx.Row) (*auth.User, error) {
	var u auth.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.PasswordHash,
		&role, &u.Active, &u.MFAEnabled, &u.LastLogin, &u.PasswordChanged,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

// GetByID implements auth.UserRepository.
func (r *OperatorUserRepository) GetByID(ctx context.Context, id string) (*auth.User, error) {
	row := r.store.pool.QueryRow(ctx, `SELECT `+operatorColumns+` FROM operator_accounts WHERE id = $1`, id)
	return scanOperator(row)
}

// GetByUsername implements auth.UserRepository.
func (r *OperatorUserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := r.store.pool.QueryRow(ctx, `SELECT `+operatorColumns+` FROM operator_accounts WHERE username = $1`, username)
	return scanOperator(row)
}

// Create implements auth.UserRepository.
func (r *OperatorUserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.store.pool.Exec(ctx, `
		INSERT INTO operator_accounts (id, username, email, display_name, password_hash, role, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Username, user.Email, user.DisplayName, user.PasswordHash, string(user.Role), user.Active)
	return err
}

// Update implements auth.UserRepository.
func (r *OperatorUserRepository) Update(ctx context.Context, user *auth.User) error {
	_, err := r.store.pool.Exec(ctx, `
		UPDATE operator_accounts
		SET email = $2, display_name = $3, role = $4, active = $5, mfa_enabled = $6, updated_at = now()
		WHERE id = $1`,
		user.ID, user.Email, user.DisplayName, string(user.Role), user.Active, user.MFAEnabled)
	return err
}

// UpdateLastLogin implements auth.UserRepository.
func (r *OperatorUserRepository) UpdateLastLogin(ctx context.Context, userID string, loginTime time.Time) error {
	_, err := r.store.pool.Exec(ctx,
		`UPDATE operator_accounts SET last_login = $2, updated_at = now() WHERE id = $1`, userID, loginTime)
	return err
}

// UpdatePassword implements auth.UserRepository.
func (r *OperatorUserRepository) UpdatePassword(ctx context.Context, userID string, passwordHash string) error {
	_, err := r.store.pool.Exec(ctx,
		`UPDATE operator_accounts SET password_hash = $2, password_changed = now(), updated_at = now() WHERE id = $1`,
		userID, passwordHash)
	return err
}

// OperatorSessionRepository adapts the Relational Store's operator_sessions
// table to auth.SessionRepository.
type OperatorSessionRepository struct {
	store *Store
}

// NewOperatorSessionRepository wraps s for use as an auth.SessionRepository.
func NewOperatorSessionRepository(s *Store) *OperatorSessionRepository {
	return &OperatorSessionRepository{store: s}
}

const operatorSessionColumns = `id, operator_id, token_id, token_family, user_agent, ip_address,
	expires_at, last_activity, revoked, revoked_at, revoked_reason, created_at`

func scanOperatorSession(row pgx.Row) (*auth.Session, error) {
	var s auth.Session
	err := row.Scan(&s.ID, &s.UserID, &s.TokenID, &s.TokenFamily, &s.UserAgent, &s.IPAddress,
		&s.ExpiresAt, &s.LastActivity, &s.Revoked, &s.RevokedAt, &s.RevokedReason, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetByID implements auth.SessionRepository.
func (r *OperatorSessionRepository) GetByID(ctx context.Context, id string) (*auth.Session, error) {
	row := r.store.pool.QueryRow(ctx, `SELECT `+operatorSessionColumns+` FROM operator_sessions WHERE id = $1`, id)
	return scanOperatorSession(row)
}

// GetByTokenID implements auth.SessionRepository.
func (r *OperatorSessionRepository) GetByTokenID(ctx context.Context, tokenID string) (*auth.Session, error) {
	row := r.store.pool.QueryRow(ctx, `SELECT `+operatorSessionColumns+` FROM operator_sessions WHERE token_id = $1`, tokenID)
	return scanOperatorSession(row)
}

// Create implements auth.SessionRepository.
func (r *OperatorSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.store.pool.Exec(ctx, `
		INSERT INTO operator_sessions (id, operator_id, token_id, token_family, user_agent, ip_address, expires_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.UserID, session.TokenID, session.TokenFamily,
		session.UserAgent, session.IPAddress, session.ExpiresAt, session.LastActivity)
	return err
}

// UpdateLastActivity implements auth.SessionRepository.
func (r *OperatorSessionRepository) UpdateLastActivity(ctx context.Context, sessionID string, activityTime time.Time) error {
	_, err := r.store.pool.Exec(ctx,
		`UPDATE operator_sessions SET last_activity = $2 WHERE id = $1`, sessionID, activityTime)
	return err
}

// Revoke implements auth.SessionRepository.
func (r *OperatorSessionRepository) Revoke(ctx context.Context, sessionID string, reason string) error {
	_, err := r.store.pool.Exec(ctx,
		`UPDATE operator_sessions SET revoked = true, revoked_at = now(), revoked_reason = $2 WHERE id = $1`,
		sessionID, reason)
	return err
}

// RevokeAllForUser implements auth.SessionRepository.
func (r *OperatorSessionRepository) RevokeAllForUser(ctx context.Context, userID string, reason string) error {
	_, err := r.store.pool.Exec(ctx,
		`UPDATE operator_sessions SET revoked = true, revoked_at = now(), revoked_reason = $2
		 WHERE operator_id = $1 AND revoked = false`, userID, reason)
	return err
}

// RevokeAllForUserExcept implements auth.SessionRepository.
func (r *OperatorSessionRepository) RevokeAllForUserExcept(ctx context.Context, userID string, exceptSessionID string, reason string) error {
	_, err := r.store.pool.Exec(ctx,
		`UPDATE operator_sessions SET revoked = true, revoked_at = now(), revoked_reason = $3
		 WHERE operator_id = $1 AND id != $2 AND revoked = false`, userID, exceptSessionID, reason)
	return err
}

// GetActiveForUser implements auth.SessionRepository.
func (r *OperatorSessionRepository) GetActiveForUser(ctx context.Context, userID string) ([]*auth.Session, error) {
	rows, err := r.store.pool.Query(ctx, `SELECT `+operatorSessionColumns+`
		FROM operator_sessions WHERE operator_id = $1 AND revoked = false ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Session
	for rows.Next() {
		s, err := scanOperatorSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CleanExpired implements auth.SessionRepository.
func (r *OperatorSessionRepository) CleanExpired(ctx context.Context) (int, error) {
	tag, err := r.store.pool.Exec(ctx, `DELETE FROM operator_sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
