package handlers

import (
	"errors"
	"log"

	"neurochat/internal/models"
	"neurochat/internal/services"

	"github.com/gofiber/fiber/v2"
)

// MessageHandler handles the send-message exchange endpoint.
type MessageHandler struct {
	service *services.ExchangeService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(service *services.ExchangeService) *MessageHandler {
	return &MessageHandler{
		service: service,
	}
}

// Send runs a full user/assistant exchange. When no chat id is given a new
// chat is created from the first message.
// POST /api/messages
func (h *MessageHandler) Send(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.service.Send(c.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, services.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Chat does not belong to this user",
			})
		case errors.Is(err, services.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Chat not found",
			})
		}
		log.Printf("❌ Failed to process message: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	return c.JSON(resp)
}
