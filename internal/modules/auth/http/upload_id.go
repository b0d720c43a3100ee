package http

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
)

var idContentType = regexp.MustCompile(`^image/(jpeg|png|webp)$`)

type uploadIDReq struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required"`
}

type uploadIDResp struct {
	UploadURL string `json:"upload_url"`
	FileKey   string `json:"file_key"`
	ExpiresIn int    `json:"expires_in"`
}

// UploadIDHandler hands out a pre-signed PUT URL for a student ID photo.
func UploadIDHandler(users domain.UserRepo, store ObjectStore, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req uploadIDReq
		if bad := parse(c, &req); bad != nil {
			return bad.send(c)
		}
		if store == nil {
			return fail(c, fiber.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage is not configured")
		}
		ctx := c.UserContext()

		u, err := users.GetByID(ctx, currentUser(c))
		if err != nil {
			return fail(c, fiber.StatusNotFound, "NOT_FOUND", "User not found")
		}
		if u.NameVerified {
			return fail(c, fiber.StatusBadRequest, "NAME_ALREADY_VERIFIED", "Name already verified")
		}
		ct := strings.ToLower(strings.TrimSpace(req.ContentType))
		if !idContentType.MatchString(ct) {
			return fail(c, fiber.StatusBadRequest, "INVALID_CONTENT_TYPE", "Only JPEG, PNG or WebP images are accepted")
		}

		url, key, ttl, err := store.PresignUpload(ctx, u.ID, req.Filename, ct)
		if err != nil {
			logger.Error("Failed to presign upload", zap.Error(err), zap.String("user_id", u.ID))
			return serverError(c, "Failed to prepare upload")
		}
		return c.JSON(uploadIDResp{UploadURL: url, FileKey: key, ExpiresIn: int(ttl.Seconds())})
	}
}
