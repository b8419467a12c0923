package handlers

import (
	"errors"
	"log"

	"neurochat/internal/database"
	"neurochat/internal/models"
	"neurochat/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ChatHandler handles HTTP requests for the chat collection.
type ChatHandler struct {
	service *services.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(service *services.ChatService) *ChatHandler {
	return &ChatHandler{
		service: service,
	}
}

// List returns the user's chats, most recently updated first
// GET /api/chats
func (h *ChatHandler) List(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	chats, err := h.service.ListChats(c.Context(), userID)
	if err != nil {
		log.Printf("❌ Failed to list chats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list chats",
		})
	}

	return c.JSON(models.ChatListResponse{
		Chats:      chats,
		TotalCount: len(chats),
	})
}

// Create creates a new empty chat
// POST /api/chats
func (h *ChatHandler) Create(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.CreateChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	summary, err := h.service.CreateChat(c.Context(), userID, req.Title, req.Model)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		log.Printf("❌ Failed to create chat: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create chat",
		})
	}

	log.Printf("✅ Chat %s created for user %s", summary.ID, userID)
	return c.Status(fiber.StatusCreated).JSON(summary)
}

// Get retrieves a chat's full message log
// GET /api/chats/:id
func (h *ChatHandler) Get(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	chatID := c.Params("id")
	if chatID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Chat ID is required",
		})
	}

	messageLog, err := h.service.GetChat(c.Context(), userID, chatID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Chat does not belong to this user",
			})
		case errors.Is(err, services.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Chat not found",
			})
		}
		log.Printf("❌ Failed to get chat: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get chat",
		})
	}

	return c.JSON(messageLog)
}

// Rename updates a chat's title
// PATCH /api/chats/:id
func (h *ChatHandler) Rename(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	chatID := c.Params("id")
	if chatID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Chat ID is required",
		})
	}

	var req models.RenameChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	summary, err := h.service.RenameChat(c.Context(), userID, chatID, req.Title)
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
		case errors.Is(err, database.ErrVersionConflict):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Chat was modified by another request - please retry",
			})
		}
		log.Printf("❌ Failed to rename chat: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to rename chat",
		})
	}

	log.Printf("✅ Chat %s renamed for user %s", chatID, userID)
	return c.JSON(summary)
}

// Delete removes a chat and its message log
// DELETE /api/chats/:id
func (h *ChatHandler) Delete(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	chatID := c.Params("id")
	if chatID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Chat ID is required",
		})
	}

	if err := h.service.DeleteChat(c.Context(), userID, chatID); err != nil {
		switch {
		case errors.Is(err, services.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Chat does not belong to this user",
			})
		case errors.Is(err, database.ErrVersionConflict):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Chat was modified by another request - please retry",
			})
		}
		log.Printf("❌ Failed to delete chat: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete chat",
		})
	}

	log.Printf("✅ Chat %s deleted for user %s", chatID, userID)
	if m := services.GetMetrics(); m != nil {
		m.ChatsDeleted.Inc()
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Chat deleted",
	})
}
