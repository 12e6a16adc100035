package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"attune/internal/database"
	"attune/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// InteractionLogService records which signals each interaction produced so
// later feedback can be attributed back to them. Records expire via the
// collection TTL index; feedback on an expired interaction is a no-op.
type InteractionLogService struct {
	mongo *database.MongoDB
	now   func() time.Time
}

// NewInteractionLogService creates a new interaction log service
func NewInteractionLogService(mongo *database.MongoDB) *InteractionLogService {
	return &InteractionLogService{
		mongo: mongo,
		now:   time.Now,
	}
}

// Record stores the signal attribution for one interaction
func (s *InteractionLogService) Record(ctx context.Context, userID, interactionID string, signals []models.Signal) error {
	doc := models.Interaction{
		InteractionID: interactionID,
		UserID:        userID,
		Signals:       signals,
		CreatedAt:     s.now().UTC(),
	}

	_, err := s.mongo.Collection(database.CollectionInteractions).InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

// Get returns the recorded interaction, or nil when unknown or expired
func (s *InteractionLogService) Get(ctx context.Context, userID, interactionID string) (*models.Interaction, error) {
	var interaction models.Interaction
	err := s.mongo.Collection(database.CollectionInteractions).
		FindOne(ctx, bson.M{"userId": userID, "interactionId": interactionID}).
		Decode(&interaction)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up interaction: %w", err)
	}
	return &interaction, nil
}
