package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"campusauth/internal/platform/metrics"
)

// Limiter is a fixed-window request counter kept in Redis.
type Limiter struct {
	client *redis.Client
	logger *zap.Logger
}

func NewLimiter(client *redis.Client, logger *zap.Logger) *Limiter {
	return &Limiter{client: client, logger: logger.Named("ratelimit")}
}

// Allow counts one request for key and reports whether it fits in limit
// requests per period, with the time left in the current window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, period time.Duration) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("rate:%s", key)

	n, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, 0, err
	}
	left, err := l.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return true, 0, err
	}
	if n == 1 || left < 0 {
		if err := l.client.PExpire(ctx, redisKey, period).Err(); err != nil {
			return true, 0, err
		}
		left = period
	}
	if n > int64(limit) {
		return false, left, nil
	}
	return true, left, nil
}

// Middleware limits requests per client IP. Redis failures let the request
// through.
func Middleware(l *Limiter, limit int, period time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ip:" + c.IP()
		ok, retry, err := l.Allow(c.UserContext(), key, limit, period)
		if err != nil {
			l.logger.Error("Rate limiter failed", zap.Error(err), zap.String("key", key))
			return c.Next()
		}
		if !ok {
			metrics.RateLimited.Inc()
			l.logger.Warn("Rate limit exceeded", zap.String("key", key), zap.Int("limit", limit))
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int((retry+time.Second-1)/time.Second)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error_code": "RATE_LIMITED",
				"detail":     "Too many requests. Please try again later.",
			})
		}
		return c.Next()
	}
}
