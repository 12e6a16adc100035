package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"attune/internal/models"
)

// Per-user feedback limits, counted in Redis so the budget holds across
// instances
const (
	feedbackRateLimit  = 30
	feedbackRateWindow = time.Minute
)

// ErrFeedbackRateLimited is returned when a user exceeds the feedback rate limit
var ErrFeedbackRateLimited = errors.New("feedback rate limit exceeded")

// interactionSource is the attribution lookup the feedback loop needs
type interactionSource interface {
	Get(ctx context.Context, userID, interactionID string) (*models.Interaction, error)
}

// feedbackRateLimiter is the shared counter behind the per-user feedback limit
type feedbackRateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// FeedbackService folds explicit user feedback back into the stored
// confidence scores. Attribution lookups and confidence adjustments are
// best-effort: a missing or expired interaction drops the feedback silently,
// and a failing adjustment never aborts the rest of the batch.
type FeedbackService struct {
	interactions interactionSource
	prefs        PreferenceStore
	limiter      feedbackRateLimiter // optional
	metrics      *Metrics
}

// NewFeedbackService creates a new feedback service. redisService may be nil;
// feedback is then unthrottled.
func NewFeedbackService(interactions interactionSource, prefs PreferenceStore, redisService *RedisService, metrics *Metrics) *FeedbackService {
	svc := &FeedbackService{
		interactions: interactions,
		prefs:        prefs,
		metrics:      metrics,
	}
	if redisService != nil {
		svc.limiter = redisService
	}
	return svc
}

// Incorporate applies one feedback event to the signals recorded for the
// interaction. Unknown feedback kinds are rejected; everything past
// validation degrades to a no-op rather than an error.
func (s *FeedbackService) Incorporate(ctx context.Context, userID string, req models.IncorporateFeedbackRequest) error {
	if req.Feedback != models.FeedbackPositive && req.Feedback != models.FeedbackNegative {
		return fmt.Errorf("invalid feedback kind %q", req.Feedback)
	}
	if req.InteractionID == "" {
		return fmt.Errorf("interaction_id is required")
	}

	if s.limiter != nil {
		exceeded, err := s.limiter.CheckRateLimit(ctx, "attune:feedback:rl:"+userID, feedbackRateLimit, feedbackRateWindow)
		if err != nil {
			// Redis trouble must not block feedback; proceed unthrottled
			log.Printf("⚠️ [FEEDBACK] Rate limit check failed for user %s, allowing: %v", userID, err)
		} else if exceeded {
			return ErrFeedbackRateLimited
		}
	}

	if s.metrics != nil {
		s.metrics.FeedbackEvents.WithLabelValues(req.Feedback).Inc()
	}

	interaction, err := s.interactions.Get(ctx, userID, req.InteractionID)
	if err != nil {
		log.Printf("⚠️ [FEEDBACK] Attribution lookup failed for interaction %s, dropping feedback: %v", req.InteractionID, err)
		return nil
	}
	if interaction == nil {
		log.Printf("⚠️ [FEEDBACK] Unknown or expired interaction %s for user %s, dropping feedback", req.InteractionID, userID)
		return nil
	}

	for _, signal := range interaction.Signals {
		var adjustErr error
		switch req.Feedback {
		case models.FeedbackPositive:
			adjustErr = s.prefs.Reinforce(ctx, userID, signal.PreferenceType, signal.PreferenceKey)
		case models.FeedbackNegative:
			adjustErr = s.prefs.Decay(ctx, userID, signal.PreferenceType, signal.PreferenceKey)
		}
		if adjustErr != nil {
			log.Printf("⚠️ [FEEDBACK] Failed to adjust %s.%s for user %s: %v",
				signal.PreferenceType, signal.PreferenceKey, userID, adjustErr)
		}
	}

	return nil
}
