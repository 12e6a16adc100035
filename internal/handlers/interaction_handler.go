package handlers

import (
	"errors"
	"log"

	"attune/internal/middleware"
	"attune/internal/models"
	"attune/internal/services"

	"github.com/gofiber/fiber/v2"
)

// InteractionHandler runs the learning pipeline for one exchange
type InteractionHandler struct {
	personalization *services.PersonalizationService
}

// NewInteractionHandler creates a new interaction handler
func NewInteractionHandler(personalization *services.PersonalizationService) *InteractionHandler {
	return &InteractionHandler{personalization: personalization}
}

// Process extracts and merges preference signals from one message/response
// exchange
func (h *InteractionHandler) Process(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.ProcessInteractionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "message is required",
		})
	}

	interactionID, signals, err := h.personalization.ProcessInteraction(c.Context(), userID, req)
	if err != nil {
		if errors.Is(err, services.ErrRateLimited) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many interactions, slow down",
			})
		}
		log.Printf("❌ [API] Interaction processing failed for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process interaction",
		})
	}

	return c.JSON(fiber.Map{
		"interaction_id": interactionID,
		"signals":        signals,
	})
}
