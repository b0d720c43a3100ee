package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"campusauth/internal/platform/security"
)

// JWTAuth accepts "Authorization: Bearer <access token>" and stores the
// user and session ids in Locals ("user_id", "session_id").
func JWTAuth(jwtMgr *security.JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(h, "Bearer ") {
			return unauthorized(c)
		}
		uid, sid, err := jwtMgr.ParseAccess(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return unauthorized(c)
		}
		c.Locals("user_id", uid)
		if sid != "" {
			c.Locals("session_id", sid)
		}
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error_code": "UNAUTHORIZED",
		"detail":     "Could not validate credentials",
	})
}
