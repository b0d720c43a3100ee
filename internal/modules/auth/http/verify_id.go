package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
	"campusauth/internal/platform/events"
	"campusauth/internal/platform/metrics"
	"campusauth/internal/platform/storage"
	"campusauth/internal/platform/vision"
	"campusauth/internal/policy"
)

type verifyIDReq struct {
	FileKey string `json:"file_key" validate:"required,max=512"`
	Name    string `json:"name" validate:"max=200"`
}

type verifyIDResp struct {
	Success       bool   `json:"success"`
	ExtractedName string `json:"extracted_name,omitempty"`
	Message       string `json:"message"`
}

// VerifyIDHandler reads the name printed on an uploaded ID. When a claimed
// name is sent, its first name must match the one on the card. The image is
// deleted once the name is verified.
func VerifyIDHandler(users domain.UserRepo, store ObjectStore, reader NameReader, g *granter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req verifyIDReq
		if bad := parse(c, &req); bad != nil {
			return bad.send(c)
		}
		if store == nil || reader == nil {
			return fail(c, fiber.StatusServiceUnavailable, "ID_VERIFICATION_UNAVAILABLE", "ID verification is not configured")
		}
		ctx := c.UserContext()

		u, err := users.GetByID(ctx, currentUser(c))
		if err != nil {
			return fail(c, fiber.StatusNotFound, "NOT_FOUND", "User not found")
		}
		if u.NameVerified {
			return fail(c, fiber.StatusBadRequest, "NAME_ALREADY_VERIFIED", "Name already verified")
		}
		if !strings.HasPrefix(req.FileKey, storage.IDPrefix+u.ID+"/") {
			return fail(c, fiber.StatusForbidden, "FORBIDDEN", "File does not belong to this account")
		}

		image, mimeType, err := store.Download(ctx, req.FileKey)
		if err != nil {
			g.logger.Warn("Failed to fetch ID image", zap.Error(err), zap.String("key", req.FileKey))
			return fail(c, fiber.StatusBadRequest, "FILE_UNAVAILABLE", "Failed to access uploaded file")
		}

		extracted, err := reader.ReadName(ctx, image, mimeType)
		if err != nil {
			metrics.NameVerifications.WithLabelValues("id", "unreadable").Inc()
			if !errors.Is(err, vision.ErrNoName) {
				g.logger.Error("Vision model failed", zap.Error(err), zap.String("user_id", u.ID))
			}
			return c.JSON(verifyIDResp{Message: "Could not read a name from the ID. Please upload a clearer photo."})
		}

		if claimed := strings.TrimSpace(req.Name); claimed != "" && !policy.SameFirstName(claimed, extracted) {
			metrics.NameVerifications.WithLabelValues("id", "mismatch").Inc()
			return c.JSON(verifyIDResp{
				ExtractedName: extracted,
				Message:       fmt.Sprintf("Name on ID (%s) doesn't match the name you entered", extracted),
			})
		}

		if err := users.SetVerifiedName(ctx, u.ID, extracted); err != nil {
			g.logger.Error("Failed to store verified name", zap.Error(err), zap.String("user_id", u.ID))
			return serverError(c, "Failed to verify name")
		}
		if err := store.Delete(ctx, req.FileKey); err != nil {
			g.logger.Warn("Failed to delete ID image", zap.Error(err), zap.String("key", req.FileKey))
		}
		metrics.NameVerifications.WithLabelValues("id", "verified").Inc()
		g.publish(c, events.Event{Type: events.NameVerified, UserID: u.ID, Email: u.Email, Data: map[string]string{"method": "id"}})
		return c.JSON(verifyIDResp{Success: true, ExtractedName: extracted, Message: "Name verified successfully"})
	}
}
