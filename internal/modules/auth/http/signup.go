package http

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
	"campusauth/internal/platform/metrics"
	"campusauth/internal/platform/security"
	"campusauth/internal/policy"
)

const devMessage = "[DEV MODE] Your verification code is: %s"

type codeReq struct {
	Email   string `json:"email" validate:"required,email,max=254"`
	DevMode bool   `json:"dev_mode"`
}

type codeResp struct {
	Message   string `json:"message"`
	Email     string `json:"email"`
	AttemptID string `json:"attempt_id"`
	DevCode   string `json:"dev_code,omitempty"`
}

// issuer creates, stores and delivers verification codes.
type issuer struct {
	codes    domain.CodeRepo
	jwt      *security.JWTManager
	mailer   Mailer
	codeTTL  time.Duration
	allowDev bool
	logger   *zap.Logger
}

// issue replaces the outstanding code for email. In dev mode the code is
// returned instead of mailed.
func (is *issuer) issue(c *fiber.Ctx, flow, email string, devRequested bool) error {
	ctx := c.UserContext()
	code, err := security.RandomDigits(6)
	if err != nil {
		return serverError(c, "Failed to generate verification code")
	}
	hash, err := security.HashCode(code)
	if err != nil {
		return serverError(c, "Failed to generate verification code")
	}
	attemptID := uuid.NewString()
	if err := is.codes.Save(ctx, domain.VerificationCode{
		ID:        attemptID,
		Email:     email,
		CodeHash:  hash,
		ExpiresAt: time.Now().UTC().Add(is.codeTTL),
	}); err != nil {
		is.logger.Error("Failed to store code", zap.Error(err), zap.String("email", email))
		return serverError(c, "Failed to generate verification code")
	}

	if devRequested && is.allowDev {
		metrics.CodesIssued.WithLabelValues(flow, "dev").Inc()
		is.logger.Info("Issued dev code", zap.String("flow", flow), zap.String("email", email))
		return c.JSON(codeResp{
			Message:   fmt.Sprintf(devMessage, code),
			Email:     email,
			AttemptID: attemptID,
			DevCode:   code,
		})
	}

	token, _, err := is.jwt.IssueEmailToken(email, attemptID)
	if err != nil {
		return serverError(c, "Failed to generate verification link")
	}
	if err := is.mailer.SendVerification(ctx, email, code, token); err != nil {
		is.logger.Error("Failed to send verification email", zap.Error(err), zap.String("email", email))
		return serverError(c, "Failed to send verification email")
	}
	metrics.CodesIssued.WithLabelValues(flow, "email").Inc()
	return c.JSON(codeResp{
		Message:   "Verification code sent to " + email,
		Email:     email,
		AttemptID: attemptID,
	})
}

// parseCodeReq validates the body and the campus domain. It returns the
// normalized email.
func parseCodeReq(c *fiber.Ctx, allow policy.AllowList) (codeReq, *badRequest) {
	var req codeReq
	if bad := parse(c, &req); bad != nil {
		return req, bad
	}
	req.Email = policy.Normalize(req.Email)
	if !allow.Allows(req.Email) {
		return req, &badRequest{fiber.StatusBadRequest, "INVALID_EMAIL_DOMAIN", allow.Hint()}
	}
	return req, nil
}

func SignupHandler(users domain.UserRepo, allow policy.AllowList, is *issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, bad := parseCodeReq(c, allow)
		if bad != nil {
			return bad.send(c)
		}

		u, err := users.GetByEmail(c.UserContext(), req.Email)
		switch {
		case err == nil && u.EmailVerified:
			return fail(c, fiber.StatusBadRequest, "EMAIL_REGISTERED", "Email already registered. Please login instead.")
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			is.logger.Error("Failed to load user", zap.Error(err))
			return serverError(c, "Failed to process signup")
		}
		return is.issue(c, "signup", req.Email, req.DevMode)
	}
}

// LoginHandler issues a code for new and existing users alike; the account
// is created on first successful verification.
func LoginHandler(users domain.UserRepo, allow policy.AllowList, is *issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, bad := parseCodeReq(c, allow)
		if bad != nil {
			return bad.send(c)
		}

		u, err := users.GetByEmail(c.UserContext(), req.Email)
		switch {
		case err == nil && u.IsBanned:
			return fail(c, fiber.StatusForbidden, "ACCOUNT_BANNED", "Account is banned")
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			is.logger.Error("Failed to load user", zap.Error(err))
			return serverError(c, "Failed to process login")
		}
		return is.issue(c, "login", req.Email, req.DevMode)
	}
}

func ResendHandler(allow policy.AllowList, is *issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, bad := parseCodeReq(c, allow)
		if bad != nil {
			return bad.send(c)
		}

		ok, left, err := is.codes.ResendAllowed(c.UserContext(), req.Email)
		if err != nil {
			is.logger.Error("Failed to check resend cooldown", zap.Error(err))
			return serverError(c, "Failed to resend code")
		}
		if !ok {
			secs := int(math.Ceil(left.Seconds()))
			c.Set(fiber.HeaderRetryAfter, fmt.Sprint(secs))
			return fail(c, fiber.StatusTooManyRequests, "RESEND_COOLDOWN",
				fmt.Sprintf("Please wait %d seconds before requesting a new code", secs))
		}
		return is.issue(c, "resend", req.Email, req.DevMode)
	}
}
