package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
	"campusauth/internal/platform/metrics"
	"campusauth/internal/platform/security"
	"campusauth/internal/policy"
)

type verifyEmailReq struct {
	Token string `json:"token" validate:"required"`
}

// VerifyEmailHandler accepts the magic-link token. Each token id is
// consumed, so replaying a link fails. The link also uses up the code mailed
// with it and stops working once that code is replaced or used.
func VerifyEmailHandler(jwtMgr *security.JWTManager, codes domain.CodeRepo, allow policy.AllowList, g *granter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req verifyEmailReq
		if bad := parse(c, &req); bad != nil {
			return bad.send(c)
		}

		claims, err := jwtMgr.ParseEmailToken(req.Token)
		if err != nil || !allow.Allows(claims.Email) {
			metrics.TokenVerifications.WithLabelValues("invalid").Inc()
			return fail(c, fiber.StatusBadRequest, "INVALID_TOKEN", "Invalid or expired verification token")
		}

		ttl := time.Until(claims.ExpiresAt)
		if ttl <= 0 {
			ttl = time.Minute
		}
		fresh, err := codes.ConsumeToken(c.UserContext(), claims.JTI, ttl)
		if err != nil {
			g.logger.Error("Failed to consume token", zap.Error(err))
			return serverError(c, "Failed to verify token")
		}
		if !fresh {
			metrics.TokenVerifications.WithLabelValues("reused").Inc()
			return fail(c, fiber.StatusBadRequest, "TOKEN_USED", "This verification link has already been used")
		}
		email := policy.Normalize(claims.Email)
		if _, err := codes.ConsumeAttempt(c.UserContext(), email, claims.AttemptID); err != nil {
			if errors.Is(err, domain.ErrCodeInvalid) || errors.Is(err, domain.ErrCodeExpired) {
				metrics.TokenVerifications.WithLabelValues("superseded").Inc()
				return fail(c, fiber.StatusBadRequest, "INVALID_TOKEN", "Invalid or expired verification token")
			}
			g.logger.Error("Failed to consume code", zap.Error(err))
			return serverError(c, "Failed to verify token")
		}
		metrics.TokenVerifications.WithLabelValues("ok").Inc()
		return g.grant(c, email, "link")
	}
}
