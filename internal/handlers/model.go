package handlers

import (
	"neurochat/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ModelHandler serves the static model catalog.
type ModelHandler struct {
	catalog *models.ModelCatalog
}

// NewModelHandler creates a new model handler
func NewModelHandler(catalog *models.ModelCatalog) *ModelHandler {
	return &ModelHandler{
		catalog: catalog,
	}
}

// List returns the available models and the default selection
// GET /api/models
func (h *ModelHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.catalog)
}
