package models

import "time"

// LearningPattern is a persisted aggregate behavioral inference for one user.
// Patterns are recomputed wholesale from a bounded interaction window and
// replaced on each analysis run, never merged incrementally.
type LearningPattern struct {
	ID                     int64             `json:"id"`
	UserID                 string            `json:"user_id"`
	PatternType            string            `json:"pattern_type"`
	PatternData            map[string]string `json:"pattern_data"`
	TriggerKeywords        []string          `json:"trigger_keywords"`
	Confidence             float64           `json:"confidence"`
	SuccessfulApplications int64             `json:"successful_applications"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

// Pattern type constants
const (
	PatternTypeCompletionFocus = "completion_focus"
	PatternTypeVerbosity       = "verbosity"
	PatternTypeUrgency         = "urgency"
)

// BehaviorPatterns is the analyzer output for one user's recent window
type BehaviorPatterns struct {
	UserID     string `json:"user_id"`
	WindowSize int    `json:"window_size"` // messages actually analyzed

	HighCompletionRate bool    `json:"high_completion_rate"`
	CompletionRate     float64 `json:"completion_rate"`

	PrefersDetailed   bool    `json:"prefers_detailed"`
	PrefersBrief      bool    `json:"prefers_brief"`
	MeanMessageLength float64 `json:"mean_message_length"`

	FrequentUrgentTasks bool `json:"frequent_urgent_tasks"`
	UrgentMessageCount  int  `json:"urgent_message_count"`

	Suggestions []string `json:"suggestions"`

	// Supervisory escalation recommendation for the oversight collaborator
	MonitoringLevel     string  `json:"monitoring_level"` // "standard" or "elevated"
	EscalationThreshold float64 `json:"escalation_threshold"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Monitoring levels
const (
	MonitoringLevelStandard = "standard"
	MonitoringLevelElevated = "elevated"
)
