package handlers

import (
	"context"
	"strings"

	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/consultapp/ConsultAppBack/internal/services"
	"github.com/gofiber/fiber/v2"
)

type disputeApplicationService interface {
	Resolve(ctx context.Context, input services.ResolveDisputeInput) (*models.Dispute, error)
}

type DisputeHandler struct {
	service disputeApplicationService
}

func NewDisputeHandler(service *services.DisputeService) *DisputeHandler {
	return &DisputeHandler{service: service}
}

type resolveDisputeRequest struct {
	Resolution  string `json:"resolution"`
	Action      string `json:"action"`
	AmountCents *int64 `json:"amount_cents"`
}

// Resolve is admin-only; the route group enforces the role.
func (h *DisputeHandler) Resolve(c *fiber.Ctx) error {
	adminID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	disputeID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid dispute id"})
	}

	var req resolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	dispute, err := h.service.Resolve(c.Context(), services.ResolveDisputeInput{
		DisputeID:   disputeID,
		Resolution:  strings.TrimSpace(req.Resolution),
		Action:      models.DisputeAction(req.Action),
		AdminID:     adminID,
		AmountCents: req.AmountCents,
	})
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(fiber.Map{"dispute": dispute})
}
