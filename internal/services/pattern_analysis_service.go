package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"attune/internal/database"
	"attune/internal/models"
)

// Keyword lexicons driving the window aggregates
var (
	completionKeywords = []string{
		"complete", "completed", "done", "finish", "finished",
		"important", "critical", "must", "urgent", "priority",
	}
	urgencyKeywords = []string{"urgent", "asap", "immediately", "right away", "now"}
)

// AnalysisConfig holds the pattern detection thresholds
type AnalysisConfig struct {
	// All thresholds fire strictly above their value
	WindowSize              int     // Default: 50 recent user messages
	CompletionRateThreshold float64 // Default: 0.3
	UrgentCountThreshold    int     // Default: 4, so 5 in-window urgent messages fire
	BriefMeanLength         float64 // Default: 60 chars
	DetailedMeanLength      float64 // Default: 150 chars
}

// DefaultAnalysisConfig returns the default thresholds
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		WindowSize:              50,
		CompletionRateThreshold: 0.3,
		UrgentCountThreshold:    4,
		BriefMeanLength:         60,
		DetailedMeanLength:      150,
	}
}

// Escalation thresholds recommended to the oversight collaborator
const (
	escalationElevated = 0.5
	escalationStandard = 0.75
)

// PatternAnalysisService recomputes aggregate behavioral patterns from the
// recent conversation window. Each run replaces the user's stored patterns
// wholesale; patterns are derived state and carry no incremental history.
type PatternAnalysisService struct {
	db            *database.DB
	conversations *ConversationLogService
	config        AnalysisConfig
	metrics       *Metrics
	now           func() time.Time
}

// NewPatternAnalysisService creates a new pattern analysis service
func NewPatternAnalysisService(db *database.DB, conversations *ConversationLogService, config AnalysisConfig, metrics *Metrics) *PatternAnalysisService {
	return &PatternAnalysisService{
		db:            db,
		conversations: conversations,
		config:        config,
		metrics:       metrics,
		now:           time.Now,
	}
}

// Analyze recomputes and persists the user's behavior patterns from the
// recent window, returning the fresh aggregates
func (s *PatternAnalysisService) Analyze(ctx context.Context, userID string) (*models.BehaviorPatterns, error) {
	messages, err := s.conversations.RecentUserMessages(ctx, userID, s.config.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis window: %w", err)
	}

	patterns := ComputePatterns(userID, messages, s.config, s.now().UTC())

	if err := s.persist(ctx, patterns); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PatternAnalyses.Inc()
	}
	log.Printf("📊 [PATTERNS] Analyzed %d messages for user %s (completion=%.2f urgent=%d)",
		patterns.WindowSize, userID, patterns.CompletionRate, patterns.UrgentMessageCount)

	return &patterns, nil
}

// ComputePatterns derives the window aggregates. Pure; identical input yields
// identical output.
func ComputePatterns(userID string, messages []models.ConversationMessage, config AnalysisConfig, analyzedAt time.Time) models.BehaviorPatterns {
	patterns := models.BehaviorPatterns{
		UserID:              userID,
		WindowSize:          len(messages),
		MonitoringLevel:     models.MonitoringLevelStandard,
		EscalationThreshold: escalationStandard,
		AnalyzedAt:          analyzedAt,
	}
	if len(messages) == 0 {
		return patterns
	}

	var completionHits, urgentHits, totalLength int
	for _, msg := range messages {
		lowered := strings.ToLower(msg.Content)
		totalLength += len(msg.Content)
		if containsAny(lowered, completionKeywords) {
			completionHits++
		}
		if containsAny(lowered, urgencyKeywords) {
			urgentHits++
		}
	}

	patterns.CompletionRate = float64(completionHits) / float64(len(messages))
	patterns.HighCompletionRate = patterns.CompletionRate > config.CompletionRateThreshold

	patterns.MeanMessageLength = float64(totalLength) / float64(len(messages))
	patterns.PrefersBrief = patterns.MeanMessageLength < config.BriefMeanLength
	patterns.PrefersDetailed = patterns.MeanMessageLength > config.DetailedMeanLength

	patterns.UrgentMessageCount = urgentHits
	patterns.FrequentUrgentTasks = urgentHits > config.UrgentCountThreshold

	if patterns.HighCompletionRate {
		patterns.Suggestions = append(patterns.Suggestions,
			"Track task completion explicitly and surface unfinished items.")
	}
	if patterns.PrefersBrief {
		patterns.Suggestions = append(patterns.Suggestions,
			"Default to concise responses for this user.")
	}
	if patterns.PrefersDetailed {
		patterns.Suggestions = append(patterns.Suggestions,
			"Default to thorough responses with full context for this user.")
	}
	if patterns.FrequentUrgentTasks {
		patterns.Suggestions = append(patterns.Suggestions,
			"Prioritize fast turnaround; this user frequently flags urgency.")
	}

	// A user who both works under urgency and tracks completion closely gets
	// a tighter oversight recommendation
	if patterns.FrequentUrgentTasks && patterns.HighCompletionRate {
		patterns.MonitoringLevel = models.MonitoringLevelElevated
		patterns.EscalationThreshold = escalationElevated
	}

	return patterns
}

func containsAny(lowered string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// persist replaces the user's stored patterns with rows derived from the
// fresh aggregates
func (s *PatternAnalysisService) persist(ctx context.Context, patterns models.BehaviorPatterns) error {
	rows := patternRows(patterns)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM learning_patterns WHERE user_id = ?`, patterns.UserID); err != nil {
		return fmt.Errorf("failed to clear learning patterns: %w: %v", ErrStoreUnavailable, err)
	}

	for _, row := range rows {
		data, err := json.Marshal(row.PatternData)
		if err != nil {
			return fmt.Errorf("failed to encode pattern data: %w", err)
		}
		keywords, err := json.Marshal(row.TriggerKeywords)
		if err != nil {
			return fmt.Errorf("failed to encode trigger keywords: %w", err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO learning_patterns
				(user_id, pattern_type, pattern_data, trigger_keywords, confidence, successful_applications, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
			row.UserID, row.PatternType, data, keywords, round2(row.Confidence), patterns.AnalyzedAt, patterns.AnalyzedAt)
		if err != nil {
			return fmt.Errorf("failed to insert learning pattern: %w: %v", ErrStoreUnavailable, err)
		}
	}

	return nil
}

// patternRows maps the aggregates onto persisted pattern records. Only
// detected patterns produce rows.
func patternRows(patterns models.BehaviorPatterns) []models.LearningPattern {
	var rows []models.LearningPattern

	if patterns.HighCompletionRate {
		rows = append(rows, models.LearningPattern{
			UserID:      patterns.UserID,
			PatternType: models.PatternTypeCompletionFocus,
			PatternData: map[string]string{
				"completion_rate": fmt.Sprintf("%.2f", patterns.CompletionRate),
			},
			TriggerKeywords: completionKeywords,
			Confidence:      patterns.CompletionRate,
		})
	}

	if patterns.PrefersBrief || patterns.PrefersDetailed {
		style := models.PreferenceValueBrief
		if patterns.PrefersDetailed {
			style = models.PreferenceValueDetailed
		}
		rows = append(rows, models.LearningPattern{
			UserID:      patterns.UserID,
			PatternType: models.PatternTypeVerbosity,
			PatternData: map[string]string{
				"style":               style,
				"mean_message_length": fmt.Sprintf("%.1f", patterns.MeanMessageLength),
			},
			TriggerKeywords: []string{},
			Confidence:      0.5,
		})
	}

	if patterns.FrequentUrgentTasks {
		rows = append(rows, models.LearningPattern{
			UserID:      patterns.UserID,
			PatternType: models.PatternTypeUrgency,
			PatternData: map[string]string{
				"urgent_messages": fmt.Sprintf("%d", patterns.UrgentMessageCount),
				"window":          fmt.Sprintf("%d", patterns.WindowSize),
			},
			TriggerKeywords: urgencyKeywords,
			Confidence:      0.6,
		})
	}

	return rows
}

// StoredPatterns returns the user's persisted pattern rows
func (s *PatternAnalysisService) StoredPatterns(ctx context.Context, userID string) ([]models.LearningPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, pattern_type, pattern_data, trigger_keywords, confidence, successful_applications, updated_at
		FROM learning_patterns
		WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query learning patterns: %w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var patterns []models.LearningPattern
	for rows.Next() {
		var p models.LearningPattern
		var data, keywords []byte
		if err := rows.Scan(&p.ID, &p.UserID, &p.PatternType, &data, &keywords, &p.Confidence, &p.SuccessfulApplications, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learning pattern: %w: %v", ErrStoreUnavailable, err)
		}
		if err := json.Unmarshal(data, &p.PatternData); err != nil {
			log.Printf("⚠️ [PATTERNS] Skipping pattern %d with undecodable data: %v", p.ID, err)
			continue
		}
		if err := json.Unmarshal(keywords, &p.TriggerKeywords); err != nil {
			log.Printf("⚠️ [PATTERNS] Skipping pattern %d with undecodable keywords: %v", p.ID, err)
			continue
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate learning patterns: %w: %v", ErrStoreUnavailable, err)
	}

	return patterns, nil
}
