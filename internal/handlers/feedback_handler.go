package handlers

import (
	"context"

	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/consultapp/ConsultAppBack/internal/services"
	"github.com/gofiber/fiber/v2"
)

type feedbackApplicationService interface {
	Submit(ctx context.Context, professionalID int64, input services.SubmitFeedbackInput) (*models.CallFeedback, error)
}

type FeedbackHandler struct {
	service feedbackApplicationService
}

func NewFeedbackHandler(service *services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

type submitFeedbackRequest struct {
	Text        string         `json:"text"`
	ActionItems []string       `json:"action_items"`
	Ratings     map[string]int `json:"ratings"`
}

func (h *FeedbackHandler) Submit(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleProfessional {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}
	professionalID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	bookingID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}

	var req submitFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	feedback, err := h.service.Submit(c.Context(), professionalID, services.SubmitFeedbackInput{
		BookingID:   bookingID,
		Text:        req.Text,
		ActionItems: req.ActionItems,
		Ratings:     req.Ratings,
	})
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"feedback": feedback})
}
