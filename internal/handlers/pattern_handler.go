package handlers

import (
	"log"

	"attune/internal/middleware"
	"attune/internal/services"

	"github.com/gofiber/fiber/v2"
)

// PatternHandler serves behavior pattern analysis
type PatternHandler struct {
	analyzer *services.PatternAnalysisService
}

// NewPatternHandler creates a new pattern handler
func NewPatternHandler(analyzer *services.PatternAnalysisService) *PatternHandler {
	return &PatternHandler{analyzer: analyzer}
}

// Analyze recomputes the caller's behavior patterns from the recent window
// and returns the fresh aggregates
func (h *PatternHandler) Analyze(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	patterns, err := h.analyzer.Analyze(c.Context(), userID)
	if err != nil {
		log.Printf("❌ [API] Pattern analysis failed for user %s: %v", userID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Pattern analysis unavailable",
		})
	}

	return c.JSON(patterns)
}
