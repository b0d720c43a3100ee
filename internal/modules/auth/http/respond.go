package http

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// fail writes the error shape every endpoint shares.
func fail(c *fiber.Ctx, status int, code, detail string) error {
	return c.Status(status).JSON(fiber.Map{
		"error_code": code,
		"detail":     detail,
	})
}

func serverError(c *fiber.Ctx, detail string) error {
	return fail(c, fiber.StatusInternalServerError, "SERVER_ERROR", detail)
}

type badRequest struct {
	status       int
	code, detail string
}

func (b *badRequest) send(c *fiber.Ctx) error { return fail(c, b.status, b.code, b.detail) }

// parse decodes the JSON body into req and runs its validate tags.
func parse(c *fiber.Ctx, req any) *badRequest {
	if err := c.BodyParser(req); err != nil {
		return &badRequest{fiber.StatusBadRequest, "INVALID_FIELDS", "Invalid request body"}
	}
	if err := validate.Struct(req); err != nil {
		return &badRequest{fiber.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error()}
	}
	return nil
}

func currentUser(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

// Mailer delivers a code together with its magic link.
type Mailer interface {
	SendVerification(ctx context.Context, to, code, token string) error
}

// ObjectStore holds uploaded ID images.
type ObjectStore interface {
	PresignUpload(ctx context.Context, userID, fileName, contentType string) (url, key string, ttl time.Duration, err error)
	Download(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

// NameReader extracts the printed name from an ID image.
type NameReader interface {
	ReadName(ctx context.Context, image []byte, mimeType string) (string, error)
}
