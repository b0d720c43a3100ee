package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
	"campusauth/internal/platform/security"
)

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshHandler rotates a refresh token: the presented session is revoked
// and a new one is opened for the same user.
func RefreshHandler(sessions domain.SessionRepo, users domain.UserRepo, g *granter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req refreshReq
		if bad := parse(c, &req); bad != nil {
			return bad.send(c)
		}
		ctx := c.UserContext()

		s, err := sessions.FindByRefreshHash(ctx, security.HashToken(req.RefreshToken))
		if err != nil || s.RevokedAt != nil || time.Now().After(s.ExpiresAt) {
			return fail(c, fiber.StatusUnauthorized, "INVALID_REFRESH", "Invalid or expired refresh token")
		}

		u, err := users.GetByID(ctx, s.UserID)
		if err != nil || !u.IsActive || u.IsBanned {
			_ = sessions.Revoke(ctx, s.ID, s.UserID)
			return fail(c, fiber.StatusUnauthorized, "ACCOUNT_INVALID", "User account is no longer valid")
		}

		if err := sessions.Revoke(ctx, s.ID, s.UserID); err != nil {
			g.logger.Error("Failed to revoke session", zap.Error(err), zap.String("session_id", s.ID))
			return serverError(c, "Failed to refresh tokens")
		}
		resp, err := g.session(c, u.ID)
		if err != nil {
			g.logger.Error("Failed to open session", zap.Error(err), zap.String("user_id", u.ID))
			return serverError(c, "Failed to refresh tokens")
		}
		return c.JSON(resp)
	}
}
