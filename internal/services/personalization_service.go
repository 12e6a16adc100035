package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"attune/internal/models"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Per-user interaction processing limits
const (
	interactionRatePerSecond = 5
	interactionBurst         = 10
)

// ErrRateLimited is returned when a user exceeds the interaction rate limit
var ErrRateLimited = fmt.Errorf("interaction rate limit exceeded")

// Logging seams of the interaction pipeline
type conversationRecorder interface {
	RecordMessage(ctx context.Context, userID, content, messageType string) error
}

type interactionRecorder interface {
	Record(ctx context.Context, userID, interactionID string, signals []models.Signal) error
}

// PersonalizationService is the interaction entry point: it extracts signals
// from one exchange, logs the exchange for later analysis and feedback
// attribution, and merges each signal into the preference store.
type PersonalizationService struct {
	extractor     *SignalExtractionService
	prefs         PreferenceStore
	conversations conversationRecorder
	interactions  interactionRecorder

	limiters sync.Map // userID -> *rate.Limiter
	now      func() time.Time
}

// NewPersonalizationService creates a new personalization service
func NewPersonalizationService(extractor *SignalExtractionService, prefs PreferenceStore, conversations conversationRecorder, interactions interactionRecorder) *PersonalizationService {
	return &PersonalizationService{
		extractor:     extractor,
		prefs:         prefs,
		conversations: conversations,
		interactions:  interactions,
		now:           time.Now,
	}
}

func (s *PersonalizationService) limiterFor(userID string) *rate.Limiter {
	if limiter, ok := s.limiters.Load(userID); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := s.limiters.LoadOrStore(userID, rate.NewLimiter(rate.Limit(interactionRatePerSecond), interactionBurst))
	return limiter.(*rate.Limiter)
}

// ProcessInteraction runs the learning pipeline for one message/response
// exchange and returns the interaction ID plus the extracted signals.
//
// Logging and signal merging are best-effort past extraction: a failed
// upsert is logged and the remaining signals still apply. The returned
// interaction ID is valid for feedback even when some upserts failed.
func (s *PersonalizationService) ProcessInteraction(ctx context.Context, userID string, req models.ProcessInteractionRequest) (string, []models.Signal, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("user ID is required")
	}
	if !s.limiterFor(userID).Allow() {
		return "", nil, ErrRateLimited
	}

	signals := s.extractor.Extract(req.Message, req.Response, s.now())
	interactionID := uuid.New().String()

	// Conversation log feeds the pattern analyzer; losing an entry skews a
	// future window but must not fail the interaction
	if err := s.conversations.RecordMessage(ctx, userID, req.Message, models.MessageTypeUser); err != nil {
		log.Printf("⚠️ [PERSONALIZATION] Failed to log user message for %s: %v", userID, err)
	}
	if req.Response != "" {
		if err := s.conversations.RecordMessage(ctx, userID, req.Response, models.MessageTypeAssistant); err != nil {
			log.Printf("⚠️ [PERSONALIZATION] Failed to log assistant message for %s: %v", userID, err)
		}
	}

	if err := s.interactions.Record(ctx, userID, interactionID, signals); err != nil {
		log.Printf("⚠️ [PERSONALIZATION] Failed to record interaction %s: %v", interactionID, err)
	}

	// Signals merge independently; a mid-batch store failure leaves earlier
	// merges in place
	for _, signal := range signals {
		if _, err := s.prefs.Upsert(ctx, userID, signal); err != nil {
			log.Printf("⚠️ [PERSONALIZATION] Failed to merge %s.%s for user %s: %v",
				signal.PreferenceType, signal.PreferenceKey, userID, err)
		}
	}

	return interactionID, signals, nil
}
