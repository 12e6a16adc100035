package services

import (
	"context"
	"fmt"
	"time"

	"attune/internal/database"
	"attune/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationLogService appends interaction messages to the MongoDB
// conversation log and serves the bounded windows the pattern analyzer reads
type ConversationLogService struct {
	mongo *database.MongoDB
	now   func() time.Time
}

// NewConversationLogService creates a new conversation log service
func NewConversationLogService(mongo *database.MongoDB) *ConversationLogService {
	return &ConversationLogService{
		mongo: mongo,
		now:   time.Now,
	}
}

// RecordMessage appends one message to the log
func (s *ConversationLogService) RecordMessage(ctx context.Context, userID, content, messageType string) error {
	msg := models.ConversationMessage{
		UserID:      userID,
		Content:     content,
		MessageType: messageType,
		CreatedAt:   s.now().UTC(),
	}

	_, err := s.mongo.Collection(database.CollectionConversations).InsertOne(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to record conversation message: %w", err)
	}
	return nil
}

// RecentUserMessages returns up to limit of the user's own messages, oldest
// first within the window
func (s *ConversationLogService) RecentUserMessages(ctx context.Context, userID string, limit int) ([]models.ConversationMessage, error) {
	filter := bson.M{"userId": userID, "messageType": models.MessageTypeUser}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.mongo.Collection(database.CollectionConversations).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation log: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.ConversationMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode conversation messages: %w", err)
	}

	// Newest-first from the index, reversed to chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ActiveUserIDs returns the distinct users with log entries since the cutoff.
// Drives the scheduled pattern refresh.
func (s *ConversationLogService) ActiveUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	raw, err := s.mongo.Collection(database.CollectionConversations).Distinct(ctx, "userId",
		bson.M{"createdAt": bson.M{"$gte": since}})
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}

	userIDs := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			userIDs = append(userIDs, id)
		}
	}
	return userIDs, nil
}
