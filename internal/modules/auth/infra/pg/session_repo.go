package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusauth/internal/modules/auth/domain"
)

const sessionColumns = `id, user_id, refresh_token_hash, device_name, ip_address, user_agent,
	last_active, created_at, revoked_at, expires_at`

const defaultSessionTTL = 30 * 24 * time.Hour

type SessionRepo struct{ db *pgxpool.Pool }

func NewSessionRepo(db *pgxpool.Pool) *SessionRepo { return &SessionRepo{db: db} }

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.DeviceName, &s.IPAddress, &s.UserAgent,
		&s.LastActive, &s.CreatedAt, &s.RevokedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Create(ctx context.Context, s domain.Session) (*domain.Session, error) {
	q := `INSERT INTO sessions (user_id, refresh_token_hash, device_name, ip_address, user_agent, expires_at)
	      VALUES ($1, $2, $3, $4, $5, $6)
	      RETURNING ` + sessionColumns
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = time.Now().UTC().Add(defaultSessionTTL)
	}
	return scanSession(r.db.QueryRow(ctx, q, s.UserID, s.RefreshTokenHash, s.DeviceName, s.IPAddress, s.UserAgent, s.ExpiresAt))
}

func (r *SessionRepo) FindByRefreshHash(ctx context.Context, hash string) (*domain.Session, error) {
	return scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash=$1`, hash))
}

func (r *SessionRepo) ListByUser(ctx context.Context, userID string, page, limit int) ([]domain.Session, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id=$1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	rows, err := r.db.Query(ctx, `SELECT `+sessionColumns+`
	                               FROM sessions WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

func (r *SessionRepo) Revoke(ctx context.Context, sessionID, userID string) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE sessions SET revoked_at=COALESCE(revoked_at, now()) WHERE id=$1 AND user_id=$2`, sessionID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SessionRepo) RevokeAll(ctx context.Context, userID string) (int, error) {
	ct, err := r.db.Exec(ctx,
		`UPDATE sessions SET revoked_at=now() WHERE user_id=$1 AND revoked_at IS NULL`, userID)
	return int(ct.RowsAffected()), err
}

var _ domain.SessionRepo = (*SessionRepo)(nil)
