package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/interval"
	"github.com/consultapp/ConsultAppBack/internal/repository"
	"github.com/consultapp/ConsultAppBack/internal/services"
	"github.com/gofiber/fiber/v2"
)

type availabilityApplicationService interface {
	Combined(ctx context.Context, userID int64, start, end time.Time) ([]interval.Interval, error)
	ReplaceFuture(ctx context.Context, userID int64, from time.Time, entries []repository.AvailabilityRow) error
}

type AvailabilityHandler struct {
	service availabilityApplicationService
}

func NewAvailabilityHandler(service *services.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

type availabilityEntry struct {
	StartAt  string `json:"start_at"`
	EndAt    string `json:"end_at"`
	Busy     bool   `json:"busy"`
	Timezone string `json:"timezone"`
}

type replaceAvailabilityRequest struct {
	From    string              `json:"from"`
	Entries []availabilityEntry `json:"entries"`
}

type openSlot struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

func (h *AvailabilityHandler) Combined(c *fiber.Ctx) error {
	userID, err := parseIDParam(c, "userID")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(c.Query("start")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "start must be a valid RFC3339 timestamp"})
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(c.Query("end")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end must be a valid RFC3339 timestamp"})
	}

	open, err := h.service.Combined(c.Context(), userID, start, end)
	if err != nil {
		return mapError(c, err)
	}

	slots := make([]openSlot, 0, len(open))
	for _, iv := range open {
		slots = append(slots, openSlot{StartAt: iv.Start, EndAt: iv.End})
	}
	return c.JSON(fiber.Map{"slots": slots})
}

func (h *AvailabilityHandler) Replace(c *fiber.Ctx) error {
	userID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req replaceAvailabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	from := time.Now().UTC()
	if strings.TrimSpace(req.From) != "" {
		from, err = time.Parse(time.RFC3339, strings.TrimSpace(req.From))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "from must be a valid RFC3339 timestamp"})
		}
	}

	rows := make([]repository.AvailabilityRow, 0, len(req.Entries))
	for _, entry := range req.Entries {
		startAt, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.StartAt))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "start_at must be a valid RFC3339 timestamp"})
		}
		endAt, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.EndAt))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end_at must be a valid RFC3339 timestamp"})
		}
		rows = append(rows, repository.AvailabilityRow{
			StartAt:  startAt,
			EndAt:    endAt,
			Busy:     entry.Busy,
			Timezone: entry.Timezone,
		})
	}

	if err := h.service.ReplaceFuture(c.Context(), userID, from, rows); err != nil {
		return mapError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
