package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCodeInvalid = errors.New("code_invalid")
	ErrCodeExpired = errors.New("code_expired")
)

// VerificationCode is an issued one-time code. Only its hash is stored.
type VerificationCode struct {
	ID        string
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CodeRepo keeps at most one outstanding code per email.
type CodeRepo interface {
	// Save replaces any outstanding code for c.Email.
	Save(ctx context.Context, c VerificationCode) error
	// Consume checks code against the outstanding one and deletes it on a
	// match. A wrong code leaves the outstanding code in place.
	Consume(ctx context.Context, email string, match func(hash string) bool) (*VerificationCode, error)
	// ConsumeAttempt deletes the outstanding code when it is still the one
	// issued as attemptID. A code that was replaced or already consumed
	// yields ErrCodeInvalid.
	ConsumeAttempt(ctx context.Context, email, attemptID string) (*VerificationCode, error)
	// ResendAllowed reports whether the issuance cooldown has passed and, if
	// not, how long is left.
	ResendAllowed(ctx context.Context, email string) (bool, time.Duration, error)
	// ConsumeToken marks a magic-link token id as used. It returns false when
	// the id was already used.
	ConsumeToken(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}
