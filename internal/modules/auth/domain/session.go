package domain

import (
	"context"
	"time"
)

// Session is one refresh-token grant, i.e. one signed-in device.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	DeviceName       *string
	IPAddress        *string
	UserAgent        *string
	LastActive       time.Time
	CreatedAt        time.Time
	RevokedAt        *time.Time
	ExpiresAt        time.Time
}

type SessionRepo interface {
	Create(ctx context.Context, s Session) (*Session, error)
	FindByRefreshHash(ctx context.Context, hash string) (*Session, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]Session, int, error)
	Revoke(ctx context.Context, sessionID, userID string) error
	RevokeAll(ctx context.Context, userID string) (int, error)
}
