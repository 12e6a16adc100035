package models

import (
	"time"
)

// Preference represents a single learned user preference for one (type, key) pair
type Preference struct {
	ID             int64           `json:"id"`
	UserID         string          `json:"user_id"`
	PreferenceType string          `json:"preference_type"` // "format", "style", "priority"
	PreferenceKey  string          `json:"preference_key"`  // e.g. "response_format"
	Value          PreferenceValue `json:"preference_value"`
	Confidence     float64         `json:"confidence_score"` // always within [0,1]
	UsageCount     int64           `json:"usage_count"`      // >= 1, never decreases while reinforced
	CreatedAt      time.Time       `json:"created_at"`
	LastUpdated    time.Time       `json:"last_updated"`
}

// PreferenceSetting is the per-key view returned to consumers
type PreferenceSetting struct {
	Value      PreferenceValue `json:"value"`
	Confidence float64         `json:"confidence"`
}

// PreferenceSet is the full nested mapping type -> key -> setting for one user.
// Snapshots handed out by the cache are shared; treat them as read-only.
type PreferenceSet map[string]map[string]PreferenceSetting

// Lookup returns the setting for (preferenceType, key) if present
func (s PreferenceSet) Lookup(preferenceType, key string) (PreferenceSetting, bool) {
	keys, ok := s[preferenceType]
	if !ok {
		return PreferenceSetting{}, false
	}
	setting, ok := keys[key]
	return setting, ok
}

// Signal is a single behavioral cue detected in one interaction
type Signal struct {
	PreferenceType string          `json:"preference_type" bson:"preferenceType"`
	PreferenceKey  string          `json:"preference_key" bson:"preferenceKey"`
	Value          PreferenceValue `json:"value" bson:"value"`
	Confidence     float64         `json:"confidence" bson:"confidence"`
}

// Preference type constants
const (
	PreferenceTypeFormat   = "format"
	PreferenceTypeStyle    = "style"
	PreferenceTypePriority = "priority"
)

// Preference key constants
const (
	PreferenceKeyResponseFormat     = "response_format"
	PreferenceKeyCommunicationStyle = "communication_style"
	PreferenceKeyTaskEmphasis       = "task_emphasis"
	PreferenceKeyResponseSpeed      = "response_speed"
)

// Well-known preference values
const (
	PreferenceValueWordTree        = "word_tree"
	PreferenceValueBrief           = "brief"
	PreferenceValueDetailed        = "detailed"
	PreferenceValueCompletionFocus = "completion_focus"
	PreferenceValueEfficient       = "efficient"
)

// Feedback kinds accepted by the feedback endpoint
const (
	FeedbackPositive = "positive"
	FeedbackNegative = "negative"
)

// ProcessInteractionRequest is the body of POST /api/interactions
type ProcessInteractionRequest struct {
	Message  string `json:"message"`
	Response string `json:"response"`
}

// IncorporateFeedbackRequest is the body of POST /api/feedback
type IncorporateFeedbackRequest struct {
	InteractionID string `json:"interaction_id"`
	Feedback      string `json:"feedback"` // "positive" or "negative"
}
