package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("not_found")
	ErrEmailTaken = errors.New("email_taken")
)

type User struct {
	ID            string
	Email         string
	Name          string
	NameVerified  bool
	EmailVerified bool
	IsBanned      bool
	IsActive      bool
	Program       *string
	Bio           *string
	AvatarURL     *string
	CampusDays    []string
	Interests     []string
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProfileUpdate carries the editable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Program    *string
	Bio        *string
	AvatarURL  *string
	CampusDays *[]string
	Interests  *[]string
}

type UserRepo interface {
	Create(ctx context.Context, email, name string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	// MarkEmailVerified also records the login time.
	MarkEmailVerified(ctx context.Context, id string) error
	SetVerifiedName(ctx context.Context, id, name string) error
	UpdateProfile(ctx context.Context, id string, p ProfileUpdate) error
}
