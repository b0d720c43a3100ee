package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
)

func DeleteDeviceHandler(sessions domain.SessionRepo) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deviceID := c.Params("device_id")
		if deviceID == "" {
			return fail(c, fiber.StatusBadRequest, "INVALID_FIELDS", "device_id is required")
		}
		if err := sessions.Revoke(c.UserContext(), deviceID, currentUser(c)); err != nil {
			return fail(c, fiber.StatusNotFound, "NOT_FOUND", "Session not found")
		}
		return c.JSON(fiber.Map{"message": "Session ended"})
	}
}

// DeleteCurrentSessionHandler signs the caller out of this device. With
// ?all=true every session of the user is revoked.
func DeleteCurrentSessionHandler(sessions domain.SessionRepo, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid := currentUser(c)
		ctx := c.UserContext()
		if c.QueryBool("all") {
			n, err := sessions.RevokeAll(ctx, uid)
			if err != nil {
				logger.Error("Failed to revoke sessions", zap.Error(err), zap.String("user_id", uid))
				return serverError(c, "Failed to end sessions")
			}
			return c.JSON(fiber.Map{"message": "All sessions ended", "sessions_terminated": n})
		}

		sid, _ := c.Locals("session_id").(string)
		if sid == "" {
			return fail(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		}
		err := sessions.Revoke(ctx, sid, uid)
		if errors.Is(err, domain.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "NOT_FOUND", "Session not found")
		}
		if err != nil {
			logger.Error("Failed to revoke session", zap.Error(err), zap.String("session_id", sid))
			return serverError(c, "Failed to end session")
		}
		return c.JSON(fiber.Map{"message": "Session ended"})
	}
}
