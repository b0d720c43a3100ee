package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
)

type updateProfileReq struct {
	Program    *string   `json:"program" validate:"omitempty,max=200"`
	Bio        *string   `json:"bio" validate:"omitempty,max=500"`
	AvatarURL  *string   `json:"avatar_url" validate:"omitempty,max=500,url"`
	CampusDays *[]string `json:"campus_days" validate:"omitempty,max=7,dive,oneof=Mon Tue Wed Thu Fri Sat Sun"`
	Interests  *[]string `json:"interests" validate:"omitempty,max=10,dive,min=1,max=50"`
}

func UpdateProfileHandler(users domain.UserRepo, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req updateProfileReq
		if bad := parse(c, &req); bad != nil {
			return bad.send(c)
		}
		ctx := c.UserContext()
		uid := currentUser(c)

		err := users.UpdateProfile(ctx, uid, domain.ProfileUpdate{
			Program:    req.Program,
			Bio:        req.Bio,
			AvatarURL:  req.AvatarURL,
			CampusDays: req.CampusDays,
			Interests:  req.Interests,
		})
		if errors.Is(err, domain.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "NOT_FOUND", "User not found")
		}
		if err != nil {
			logger.Error("Failed to update profile", zap.Error(err), zap.String("user_id", uid))
			return serverError(c, "Failed to update profile")
		}

		u, err := users.GetByID(ctx, uid)
		if err != nil {
			return serverError(c, "Failed to load profile")
		}
		return c.JSON(toProfile(u))
	}
}
