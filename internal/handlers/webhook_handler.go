package handlers

import (
	"context"

	"github.com/consultapp/ConsultAppBack/internal/services"
	"github.com/gofiber/fiber/v2"
)

type webhookIngestService interface {
	Ingest(ctx context.Context, timestamp, signature string, body []byte) (bool, error)
}

// WebhookHandler receives meeting-provider deliveries. It is unauthenticated;
// the HMAC signature is the auth.
type WebhookHandler struct {
	service webhookIngestService
}

func NewWebhookHandler(service *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

func (h *WebhookHandler) MeetingEvent(c *fiber.Ctx) error {
	timestamp := c.Get("X-Webhook-Timestamp")
	signature := c.Get("X-Webhook-Signature")
	if timestamp == "" || signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing signature headers"})
	}

	// Body() is only valid during the handler; copy before it is queued.
	body := make([]byte, len(c.Body()))
	copy(body, c.Body())

	duplicate, err := h.service.Ingest(c.Context(), timestamp, signature, body)
	if err != nil {
		return mapError(c, err)
	}
	if duplicate {
		return c.JSON(fiber.Map{"status": "duplicate"})
	}
	return c.JSON(fiber.Map{"status": "accepted"})
}
