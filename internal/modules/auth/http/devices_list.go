package http

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
)

type deviceDTO struct {
	ID         string  `json:"id"`
	DeviceName *string `json:"device_name"`
	LastActive string  `json:"last_active"`
	IPAddress  *string `json:"ip_address"`
	UserAgent  *string `json:"user_agent,omitempty"`
	Current    bool    `json:"current"`
	Revoked    bool    `json:"revoked"`
}

type devicesResp struct {
	Devices []deviceDTO `json:"devices"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
}

// ListDevicesHandler pages through the caller's sessions, newest first.
func ListDevicesHandler(sessions domain.SessionRepo, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid := currentUser(c)
		sid, _ := c.Locals("session_id").(string)

		page, _ := strconv.Atoi(c.Query("page", "1"))
		limit, _ := strconv.Atoi(c.Query("limit", "10"))
		if page <= 0 {
			page = 1
		}
		if limit <= 0 || limit > 100 {
			limit = 10
		}

		items, total, err := sessions.ListByUser(c.UserContext(), uid, page, limit)
		if err != nil {
			logger.Error("Failed to list sessions", zap.Error(err), zap.String("user_id", uid))
			return serverError(c, "Failed to load devices")
		}

		out := make([]deviceDTO, 0, len(items))
		for _, s := range items {
			last := s.LastActive
			if last.IsZero() {
				last = s.CreatedAt
			}
			out = append(out, deviceDTO{
				ID:         s.ID,
				DeviceName: s.DeviceName,
				LastActive: last.UTC().Format(time.RFC3339),
				IPAddress:  s.IPAddress,
				UserAgent:  s.UserAgent,
				Current:    s.ID == sid,
				Revoked:    s.RevokedAt != nil,
			})
		}

		return c.JSON(devicesResp{
			Devices: out,
			Total:   total,
			Page:    page,
			Limit:   limit,
		})
	}
}
