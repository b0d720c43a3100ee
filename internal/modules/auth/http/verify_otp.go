package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
	"campusauth/internal/platform/events"
	"campusauth/internal/platform/metrics"
	"campusauth/internal/platform/security"
	"campusauth/internal/policy"
)

type tokenResp struct {
	AccessToken              string `json:"access_token"`
	RefreshToken             string `json:"refresh_token"`
	TokenType                string `json:"token_type"`
	ExpiresIn                int    `json:"expires_in"`
	RequiresNameVerification *bool  `json:"requires_name_verification,omitempty"`
}

// granter turns a verified email into a signed-in session.
type granter struct {
	users      domain.UserRepo
	sessions   domain.SessionRepo
	jwt        *security.JWTManager
	events     events.Publisher
	refreshTTL time.Duration
	logger     *zap.Logger
}

// session opens a refresh session for userID and signs an access token
// bound to it.
func (g *granter) session(c *fiber.Ctx, userID string) (tokenResp, error) {
	rt, rth, err := security.IssueRefresh()
	if err != nil {
		return tokenResp{}, err
	}
	ip := c.IP()
	ua := c.Get(fiber.HeaderUserAgent)
	var device *string
	if d := c.Get("X-Device-Name"); d != "" {
		device = &d
	}
	s, err := g.sessions.Create(c.UserContext(), domain.Session{
		UserID:           userID,
		RefreshTokenHash: rth,
		DeviceName:       device,
		IPAddress:        &ip,
		UserAgent:        &ua,
		ExpiresAt:        time.Now().UTC().Add(g.refreshTTL),
	})
	if err != nil {
		return tokenResp{}, err
	}
	at, _, err := g.jwt.IssueAccess(userID, s.ID)
	if err != nil {
		return tokenResp{}, err
	}
	return tokenResp{
		AccessToken:  at,
		RefreshToken: rt,
		TokenType:    "bearer",
		ExpiresIn:    int(g.jwt.AccessTTL().Seconds()),
	}, nil
}

// grant finds or creates the user for a freshly verified email, marks the
// email verified and answers with a token pair.
func (g *granter) grant(c *fiber.Ctx, email, via string) error {
	ctx := c.UserContext()
	u, err := g.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		name := policy.SuggestName(email)
		if name == "" {
			name = "New User"
		}
		u, err = g.users.Create(ctx, email, name)
		if errors.Is(err, domain.ErrEmailTaken) {
			u, err = g.users.GetByEmail(ctx, email)
		} else if err == nil {
			g.publish(c, events.Event{Type: events.UserCreated, UserID: u.ID, Email: email})
		}
	}
	if err != nil {
		g.logger.Error("Failed to load user", zap.Error(err), zap.String("email", email))
		return serverError(c, "Failed to complete verification")
	}
	if u.IsBanned {
		return fail(c, fiber.StatusForbidden, "ACCOUNT_BANNED", "Account is banned")
	}
	if err := g.users.MarkEmailVerified(ctx, u.ID); err != nil {
		g.logger.Error("Failed to mark email verified", zap.Error(err), zap.String("user_id", u.ID))
		return serverError(c, "Failed to complete verification")
	}

	resp, err := g.session(c, u.ID)
	if err != nil {
		g.logger.Error("Failed to open session", zap.Error(err), zap.String("user_id", u.ID))
		return serverError(c, "Failed to create session")
	}
	requires := !u.NameVerified
	resp.RequiresNameVerification = &requires

	g.publish(c, events.Event{Type: events.EmailVerified, UserID: u.ID, Email: email, Data: map[string]string{"via": via}})
	g.logger.Info("Email verified", zap.String("user_id", u.ID), zap.String("via", via))
	return c.JSON(resp)
}

// publish never fails the request; events are best effort.
func (g *granter) publish(c *fiber.Ctx, e events.Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := g.events.Publish(c.UserContext(), e); err != nil {
		g.logger.Warn("Failed to publish event", zap.String("type", e.Type), zap.Error(err))
	}
}

type verifyOTPReq struct {
	Email   string `json:"email" validate:"required,email"`
	Code    string `json:"code" validate:"required,len=6,numeric"`
	DevMode bool   `json:"dev_mode"`
}

// VerifyOTPHandler consumes the outstanding code for the email. dev_mode is
// accepted for compatibility; dev codes live in the same store.
func VerifyOTPHandler(codes domain.CodeRepo, g *granter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req verifyOTPReq
		if bad := parse(c, &req); bad != nil {
			return bad.send(c)
		}
		email := policy.Normalize(req.Email)

		_, err := codes.Consume(c.UserContext(), email, func(hash string) bool {
			return security.CheckCode(hash, req.Code)
		})
		switch {
		case errors.Is(err, domain.ErrCodeExpired):
			metrics.CodeVerifications.WithLabelValues("expired").Inc()
			return fail(c, fiber.StatusBadRequest, "CODE_EXPIRED", "Verification code has expired. Please request a new one.")
		case errors.Is(err, domain.ErrCodeInvalid):
			metrics.CodeVerifications.WithLabelValues("invalid").Inc()
			return fail(c, fiber.StatusBadRequest, "INVALID_CODE", "Invalid verification code")
		case err != nil:
			g.logger.Error("Failed to consume code", zap.Error(err))
			return serverError(c, "Failed to verify code")
		}
		metrics.CodeVerifications.WithLabelValues("ok").Inc()
		return g.grant(c, email, "code")
	}
}
