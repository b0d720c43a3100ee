package pg

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusauth/internal/modules/auth/domain"
)

// CodeRepo keeps one row per email. Save overwrites it; Consume marks it
// consumed so created_at still drives the resend cooldown.
type CodeRepo struct {
	db       *pgxpool.Pool
	cooldown time.Duration
}

func NewCodeRepo(db *pgxpool.Pool, cooldown time.Duration) *CodeRepo {
	return &CodeRepo{db: db, cooldown: cooldown}
}

func (r *CodeRepo) Save(ctx context.Context, c domain.VerificationCode) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO verification_codes (id, email, code_hash, expires_at)
VALUES ($1, LOWER($2), $3, $4)
ON CONFLICT (email) DO UPDATE
   SET id=EXCLUDED.id, code_hash=EXCLUDED.code_hash, expires_at=EXCLUDED.expires_at,
       consumed_at=NULL, created_at=now()`,
		c.ID, c.Email, c.CodeHash, c.ExpiresAt,
	)
	return err
}

func (r *CodeRepo) Consume(ctx context.Context, email string, match func(string) bool) (*domain.VerificationCode, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var v domain.VerificationCode
	err = tx.QueryRow(ctx, `
SELECT id, email, code_hash, expires_at, created_at
FROM verification_codes
WHERE email=LOWER($1) AND consumed_at IS NULL
FOR UPDATE`, email).Scan(&v.ID, &v.Email, &v.CodeHash, &v.ExpiresAt, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCodeInvalid
	}
	if err != nil {
		return nil, err
	}
	if !match(v.CodeHash) {
		return nil, domain.ErrCodeInvalid
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE verification_codes SET consumed_at=$2 WHERE id=$1`, v.ID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if now.After(v.ExpiresAt) {
		return nil, domain.ErrCodeExpired
	}
	return &v, nil
}

func (r *CodeRepo) ConsumeAttempt(ctx context.Context, email, attemptID string) (*domain.VerificationCode, error) {
	var v domain.VerificationCode
	err := r.db.QueryRow(ctx, `
UPDATE verification_codes SET consumed_at=now()
WHERE email=LOWER($1) AND id=$2 AND consumed_at IS NULL
RETURNING id, email, code_hash, expires_at, created_at`, email, attemptID,
	).Scan(&v.ID, &v.Email, &v.CodeHash, &v.ExpiresAt, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCodeInvalid
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(v.ExpiresAt) {
		return nil, domain.ErrCodeExpired
	}
	return &v, nil
}

func (r *CodeRepo) ResendAllowed(ctx context.Context, email string) (bool, time.Duration, error) {
	var elapsed float64
	err := r.db.QueryRow(ctx,
		`SELECT EXTRACT(EPOCH FROM now() - created_at)::float8 FROM verification_codes WHERE email=LOWER($1)`,
		email,
	).Scan(&elapsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	left := r.cooldown - time.Duration(elapsed*float64(time.Second))
	if left <= 0 {
		return true, 0, nil
	}
	return false, left, nil
}

func (r *CodeRepo) ConsumeToken(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if _, err := r.db.Exec(ctx, `DELETE FROM used_email_tokens WHERE forget_after < now()`); err != nil {
		return false, err
	}
	ct, err := r.db.Exec(ctx,
		`INSERT INTO used_email_tokens (jti, forget_after) VALUES ($1, $2) ON CONFLICT (jti) DO NOTHING`,
		jti, time.Now().UTC().Add(ttl))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

var _ domain.CodeRepo = (*CodeRepo)(nil)
