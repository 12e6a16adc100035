package handlers

import (
	"attune/internal/middleware"
	"attune/internal/models"
	"attune/internal/services"

	"github.com/gofiber/fiber/v2"
)

// Generation parameter defaults applied when the caller omits a base context
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

// ContextHandler derives personalized generation parameters
type ContextHandler struct {
	contexts *services.ContextService
}

// NewContextHandler creates a new context handler
func NewContextHandler(contexts *services.ContextService) *ContextHandler {
	return &ContextHandler{contexts: contexts}
}

// applyContextRequest uses pointers so an explicit zero (e.g. temperature 0)
// is distinguishable from an omitted field
type applyContextRequest struct {
	Model                string   `json:"model"`
	Temperature          *float64 `json:"temperature"`
	MaxTokens            *int     `json:"max_tokens"`
	SystemPromptAddition string   `json:"system_prompt_addition"`
}

// Apply returns the effective generation context for the caller. Always
// succeeds; on any internal failure the base context comes back unchanged.
func (h *ContextHandler) Apply(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req applyContextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	base := models.GenerationContext{
		Model:                req.Model,
		Temperature:          defaultTemperature,
		MaxTokens:            defaultMaxTokens,
		SystemPromptAddition: req.SystemPromptAddition,
	}
	if req.Temperature != nil {
		base.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		base.MaxTokens = *req.MaxTokens
	}

	effective := h.contexts.Apply(c.Context(), userID, base)
	return c.JSON(effective)
}
