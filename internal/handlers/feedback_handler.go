package handlers

import (
	"errors"

	"attune/internal/middleware"
	"attune/internal/models"
	"attune/internal/services"

	"github.com/gofiber/fiber/v2"
)

// FeedbackHandler accepts explicit feedback on past interactions
type FeedbackHandler struct {
	feedback *services.FeedbackService
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(feedback *services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

// Incorporate applies one feedback event. Only malformed requests fail;
// unknown interactions and store hiccups are absorbed silently.
func (h *FeedbackHandler) Incorporate(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.IncorporateFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.feedback.Incorporate(c.Context(), userID, req); err != nil {
		if errors.Is(err, services.ErrFeedbackRateLimited) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too much feedback, slow down",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status": "accepted",
	})
}
