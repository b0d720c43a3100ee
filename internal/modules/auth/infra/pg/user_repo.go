package pg

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusauth/internal/modules/auth/domain"
)

const userColumns = `id, email, name, name_verified, email_verified, is_banned, is_active,
	program, bio, avatar_url, COALESCE(campus_days, '{}'), COALESCE(interests, '{}'),
	last_login_at, created_at, updated_at`

type UserRepo struct{ db *pgxpool.Pool }

func NewUserRepo(db *pgxpool.Pool) *UserRepo { return &UserRepo{db: db} }

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.NameVerified, &u.EmailVerified, &u.IsBanned, &u.IsActive,
		&u.Program, &u.Bio, &u.AvatarURL, &u.CampusDays, &u.Interests,
		&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, email, name string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `
INSERT INTO users (email, name)
VALUES (LOWER($1), $2)
RETURNING `+userColumns, email, name)
	u, err := scanUser(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, domain.ErrEmailTaken
	}
	return u, err
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, strings.ToLower(email))
	return scanUser(row)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

func (r *UserRepo) exec(ctx context.Context, q string, args ...any) error {
	ct, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepo) MarkEmailVerified(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE users SET email_verified=true, last_login_at=now(), updated_at=now() WHERE id=$1`, id)
}

func (r *UserRepo) SetVerifiedName(ctx context.Context, id, name string) error {
	return r.exec(ctx, `UPDATE users SET name=$2, name_verified=true, updated_at=now() WHERE id=$1`, id, name)
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id string, p domain.ProfileUpdate) error {
	var days, interests []string
	if p.CampusDays != nil {
		days = *p.CampusDays
	}
	if p.Interests != nil {
		interests = *p.Interests
	}
	return r.exec(ctx, `UPDATE users SET
	        program     = COALESCE($2, program),
	        bio         = COALESCE($3, bio),
	        avatar_url  = COALESCE($4, avatar_url),
	        campus_days = CASE WHEN $5 THEN $6::text[] ELSE campus_days END,
	        interests   = CASE WHEN $7 THEN $8::text[] ELSE interests END,
	        updated_at  = now()
	      WHERE id=$1`,
		id, p.Program, p.Bio, p.AvatarURL,
		p.CampusDays != nil, days, p.Interests != nil, interests)
}

var _ domain.UserRepo = (*UserRepo)(nil)
