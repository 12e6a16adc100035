package models

import "time"

// ConversationMessage is one entry of the conversation log consumed by the
// pattern analyzer
type ConversationMessage struct {
	UserID      string    `json:"user_id" bson:"userId"`
	Content     string    `json:"content" bson:"content"`
	MessageType string    `json:"message_type" bson:"messageType"` // "user" or "assistant"
	CreatedAt   time.Time `json:"created_at" bson:"createdAt"`
}

// Message type constants
const (
	MessageTypeUser      = "user"
	MessageTypeAssistant = "assistant"
)

// Interaction records which signals were extracted from one message/response
// exchange so later feedback can be attributed back to them
type Interaction struct {
	InteractionID string    `json:"interaction_id" bson:"interactionId"`
	UserID        string    `json:"user_id" bson:"userId"`
	Signals       []Signal  `json:"signals" bson:"signals"`
	CreatedAt     time.Time `json:"created_at" bson:"createdAt"`
}
