package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
	"campusauth/internal/platform/events"
	"campusauth/internal/platform/metrics"
	"campusauth/internal/policy"
)

type verifyNameReq struct {
	Name string `json:"name" validate:"required,max=200"`
}

type verifyNameResp struct {
	Success          bool   `json:"success"`
	NameVerified     bool   `json:"name_verified"`
	AutoVerified     bool   `json:"auto_verified"`
	RequiresIDUpload bool   `json:"requires_id_upload"`
	Message          string `json:"message"`
}

// VerifyNameHandler accepts the claimed name outright when its first name
// appears in the email address; otherwise it asks for an ID upload.
func VerifyNameHandler(users domain.UserRepo, g *granter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req verifyNameReq
		if bad := parse(c, &req); bad != nil {
			return bad.send(c)
		}
		ctx := c.UserContext()

		u, err := users.GetByID(ctx, currentUser(c))
		if err != nil {
			return fail(c, fiber.StatusNotFound, "NOT_FOUND", "User not found")
		}
		if u.NameVerified {
			return fail(c, fiber.StatusBadRequest, "NAME_ALREADY_VERIFIED", "Name already verified and cannot be changed")
		}
		name, ok := policy.CleanName(req.Name)
		if !ok {
			return fail(c, fiber.StatusBadRequest, "INVALID_NAME",
				"Name must be 2-100 characters of letters, spaces, hyphens or apostrophes")
		}

		matched, reason := policy.MatchNameToEmail(name, u.Email)
		if !matched {
			metrics.NameVerifications.WithLabelValues("email", "needs_id").Inc()
			return c.JSON(verifyNameResp{Success: true, RequiresIDUpload: true, Message: reason})
		}

		if err := users.SetVerifiedName(ctx, u.ID, name); err != nil {
			g.logger.Error("Failed to store verified name", zap.Error(err), zap.String("user_id", u.ID))
			return serverError(c, "Failed to verify name")
		}
		metrics.NameVerifications.WithLabelValues("email", "verified").Inc()
		g.publish(c, events.Event{Type: events.NameVerified, UserID: u.ID, Email: u.Email, Data: map[string]string{"method": "email"}})
		return c.JSON(verifyNameResp{Success: true, NameVerified: true, AutoVerified: true, Message: reason})
	}
}
