package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/consultapp/ConsultAppBack/internal/services"
	"github.com/gofiber/fiber/v2"
)

type bookingApplicationService interface {
	Request(ctx context.Context, candidateID int64, input services.RequestBookingInput) (*models.BookingDetail, error)
	Accept(ctx context.Context, professionalID, bookingID int64) (*models.BookingDetail, error)
	Decline(ctx context.Context, professionalID, bookingID int64) (*models.BookingDetail, error)
	Cancel(ctx context.Context, actorID, bookingID int64) (*models.BookingDetail, error)
	RequestReschedule(ctx context.Context, actorID, bookingID int64, startAt, endAt time.Time) (*models.BookingDetail, error)
	ConfirmReschedule(ctx context.Context, actorID, bookingID int64, startAt, endAt time.Time) (*models.BookingDetail, error)
	OpenDispute(ctx context.Context, candidateID, bookingID int64, reason string) (*models.Dispute, error)
	Get(ctx context.Context, actorID int64, role string, bookingID int64) (*models.BookingDetail, error)
	List(ctx context.Context, actorID int64, role, status string) ([]models.Booking, error)
}

type BookingHandler struct {
	service bookingApplicationService
}

func NewBookingHandler(service *services.BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

type requestBookingRequest struct {
	ProfessionalID int64   `json:"professional_id"`
	PriceCents     int64   `json:"price_cents"`
	StartAt        *string `json:"start_at"`
	EndAt          *string `json:"end_at"`
}

type rescheduleRequest struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

type openDisputeRequest struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Request(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleCandidate {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}
	candidateID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req requestBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	input := services.RequestBookingInput{
		ProfessionalID: req.ProfessionalID,
		PriceCents:     req.PriceCents,
	}
	if req.StartAt != nil {
		startAt, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.StartAt))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "start_at must be a valid RFC3339 timestamp"})
		}
		input.StartAt = &startAt
	}
	if req.EndAt != nil {
		endAt, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.EndAt))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end_at must be a valid RFC3339 timestamp"})
		}
		input.EndAt = &endAt
	}

	detail, err := h.service.Request(c.Context(), candidateID, input)
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"booking": detail})
}

func (h *BookingHandler) Accept(c *fiber.Ctx) error {
	return h.professionalAction(c, h.service.Accept)
}

func (h *BookingHandler) Decline(c *fiber.Ctx) error {
	return h.professionalAction(c, h.service.Decline)
}

func (h *BookingHandler) professionalAction(
	c *fiber.Ctx,
	action func(ctx context.Context, professionalID, bookingID int64) (*models.BookingDetail, error),
) error {
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

	detail, err := action(c.Context(), professionalID, bookingID)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(fiber.Map{"booking": detail})
}

func (h *BookingHandler) Cancel(c *fiber.Ctx) error {
	actorID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	bookingID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}

	detail, err := h.service.Cancel(c.Context(), actorID, bookingID)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(fiber.Map{"booking": detail})
}

func (h *BookingHandler) Reschedule(c *fiber.Ctx) error {
	return h.rescheduleAction(c, h.service.RequestReschedule)
}

func (h *BookingHandler) ConfirmReschedule(c *fiber.Ctx) error {
	return h.rescheduleAction(c, h.service.ConfirmReschedule)
}

func (h *BookingHandler) rescheduleAction(
	c *fiber.Ctx,
	action func(ctx context.Context, actorID, bookingID int64, startAt, endAt time.Time) (*models.BookingDetail, error),
) error {
	actorID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	bookingID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}

	var req rescheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	startAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartAt))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "start_at must be a valid RFC3339 timestamp"})
	}
	endAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndAt))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end_at must be a valid RFC3339 timestamp"})
	}

	detail, err := action(c.Context(), actorID, bookingID, startAt, endAt)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(fiber.Map{"booking": detail})
}

func (h *BookingHandler) OpenDispute(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleCandidate {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}
	candidateID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	bookingID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}

	var req openDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	dispute, err := h.service.OpenDispute(c.Context(), candidateID, bookingID, strings.TrimSpace(req.Reason))
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"dispute": dispute})
}

func (h *BookingHandler) Get(c *fiber.Ctx) error {
	role, _ := c.Locals("role").(string)
	actorID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	bookingID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}

	detail, err := h.service.Get(c.Context(), actorID, role, bookingID)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(fiber.Map{"booking": detail})
}

func (h *BookingHandler) List(c *fiber.Ctx) error {
	role, _ := c.Locals("role").(string)
	actorID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	bookings, err := h.service.List(c.Context(), actorID, role, strings.TrimSpace(c.Query("status")))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(fiber.Map{"bookings": bookings})
}
