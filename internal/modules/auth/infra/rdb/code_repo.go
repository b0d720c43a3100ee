// Package rdb keeps issued verification codes in Redis.
package rdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
)

// CodeRepo stores one JSON record per email under otp:code:<email>, expiring
// with the code. otp:sent:<email> lives for the resend cooldown and
// otp:jti:<jti> remembers consumed magic-link tokens.
type CodeRepo struct {
	client   *redis.Client
	logger   *zap.Logger
	cooldown time.Duration
}

func NewCodeRepo(client *redis.Client, logger *zap.Logger, cooldown time.Duration) *CodeRepo {
	return &CodeRepo{client: client, logger: logger.Named("code_repo"), cooldown: cooldown}
}

func codeKey(email string) string { return fmt.Sprintf("otp:code:%s", email) }
func sentKey(email string) string { return fmt.Sprintf("otp:sent:%s", email) }
func jtiKey(jti string) string    { return fmt.Sprintf("otp:jti:%s", jti) }

type record struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CodeHash  string    `json:"code_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *CodeRepo) Save(ctx context.Context, c domain.VerificationCode) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("save code: already expired at %s", c.ExpiresAt)
	}
	data, err := json.Marshal(record(c))
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, codeKey(c.Email), data, ttl)
		p.Set(ctx, sentKey(c.Email), c.CreatedAt.Unix(), r.cooldown)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to store code", zap.Error(err), zap.String("email", c.Email))
	}
	return err
}

// deleteIfUnchanged removes key only while it still holds data, so a code
// saved by a resend after the read survives.
var deleteIfUnchanged = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *CodeRepo) load(ctx context.Context, email string) (record, []byte, error) {
	var rec record
	data, err := r.client.Get(ctx, codeKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, nil, domain.ErrCodeInvalid
	}
	if err != nil {
		return rec, nil, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, nil, fmt.Errorf("decode code: %w", err)
	}
	return rec, data, nil
}

// take deletes the record read as data. Only the caller whose delete lands
// wins the code.
func (r *CodeRepo) take(ctx context.Context, email string, rec record, data []byte) (*domain.VerificationCode, error) {
	n, err := deleteIfUnchanged.Run(ctx, r.client, []string{codeKey(email)}, data).Int()
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, domain.ErrCodeInvalid
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, domain.ErrCodeExpired
	}
	c := domain.VerificationCode(rec)
	return &c, nil
}

func (r *CodeRepo) Consume(ctx context.Context, email string, match func(string) bool) (*domain.VerificationCode, error) {
	rec, data, err := r.load(ctx, email)
	if err != nil {
		return nil, err
	}
	if !match(rec.CodeHash) {
		return nil, domain.ErrCodeInvalid
	}
	return r.take(ctx, email, rec, data)
}

func (r *CodeRepo) ConsumeAttempt(ctx context.Context, email, attemptID string) (*domain.VerificationCode, error) {
	rec, data, err := r.load(ctx, email)
	if err != nil {
		return nil, err
	}
	if rec.ID != attemptID {
		return nil, domain.ErrCodeInvalid
	}
	return r.take(ctx, email, rec, data)
}

func (r *CodeRepo) ResendAllowed(ctx context.Context, email string) (bool, time.Duration, error) {
	left, err := r.client.PTTL(ctx, sentKey(email)).Result()
	if err != nil {
		return false, 0, err
	}
	// PTTL reports -2 for a missing key and -1 for one without expiry.
	if left <= 0 {
		return true, 0, nil
	}
	return false, left, nil
}

func (r *CodeRepo) ConsumeToken(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, jtiKey(jti), 1, ttl).Result()
}

var _ domain.CodeRepo = (*CodeRepo)(nil)
