package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"campusauth/internal/modules/auth/domain"
)

type profileResp struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	NameVerified  bool     `json:"name_verified"`
	EmailVerified bool     `json:"email_verified"`
	Program       *string  `json:"program,omitempty"`
	Bio           *string  `json:"bio,omitempty"`
	AvatarURL     *string  `json:"avatar_url,omitempty"`
	CampusDays    []string `json:"campus_days,omitempty"`
	Interests     []string `json:"interests,omitempty"`
}

func toProfile(u *domain.User) profileResp {
	return profileResp{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		NameVerified:  u.NameVerified,
		EmailVerified: u.EmailVerified,
		Program:       u.Program,
		Bio:           u.Bio,
		AvatarURL:     u.AvatarURL,
		CampusDays:    u.CampusDays,
		Interests:     u.Interests,
	}
}

func GetProfileHandler(users domain.UserRepo) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := users.GetByID(c.UserContext(), currentUser(c))
		if err != nil {
			return fail(c, fiber.StatusNotFound, "NOT_FOUND", "User not found")
		}
		return c.JSON(toProfile(u))
	}
}

// PublicProfileHandler shows another user without their email.
func PublicProfileHandler(users domain.UserRepo) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := users.GetByID(c.UserContext(), c.Params("user_id"))
		if err != nil || !u.IsActive || u.IsBanned {
			return fail(c, fiber.StatusNotFound, "NOT_FOUND", "User not found")
		}
		return c.JSON(fiber.Map{
			"id":            u.ID,
			"name":          u.Name,
			"name_verified": u.NameVerified,
			"program":       u.Program,
			"bio":           u.Bio,
			"avatar_url":    u.AvatarURL,
			"interests":     u.Interests,
			"created_at":    u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
}
