package handlers

import (
	"log"

	"attune/internal/middleware"
	"attune/internal/models"
	"attune/internal/services"

	"github.com/gofiber/fiber/v2"
)

// PreferenceHandler serves the learned preference set
type PreferenceHandler struct {
	prefs services.PreferenceStore
}

// NewPreferenceHandler creates a new preference handler
func NewPreferenceHandler(prefs services.PreferenceStore) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs}
}

// Get returns the caller's full preference set. Degrades to an empty set when
// the store is unreachable; personalization callers treat absence and failure
// the same way.
func (h *PreferenceHandler) Get(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	set, err := h.prefs.Get(c.Context(), userID)
	if err != nil {
		log.Printf("⚠️ [API] Preference fetch failed for user %s, returning empty set: %v", userID, err)
		set = models.PreferenceSet{}
	}

	return c.JSON(fiber.Map{
		"user_id":     userID,
		"preferences": set,
	})
}

// Reset deletes all learned preferences and patterns for the caller
func (h *PreferenceHandler) Reset(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	if err := h.prefs.Reset(c.Context(), userID); err != nil {
		log.Printf("❌ [API] Preference reset failed for user %s: %v", userID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Preference store unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"status":  "reset",
		"user_id": userID,
	})
}
