package services

import (
	"context"
	"log"
	"math"
	"strings"
	"time"

	"attune/internal/models"
)

// Applier clamps and bounds (fixed semantics of the generation contract)
const (
	temperatureFloor = 0.3
	temperatureCeil  = 0.9

	briefMaxTokens    = 800
	detailedMinTokens = 1200

	briefTemperatureDelta     = 0.2
	detailedTemperatureDelta  = 0.1
	efficientTemperatureDelta = 0.3

	// Preferences decayed below this confidence no longer influence the
	// effective context; repeated negative feedback suppresses a preference
	// without erasing it.
	minApplyConfidence = 0.3
)

// System prompt additions per preference
const (
	instructionWordTree        = "Structure responses as hierarchical word trees when presenting information."
	instructionBrief           = "Keep responses brief and to the point."
	instructionDetailed        = "Provide thorough, detailed responses with full context."
	instructionCompletionFocus = "Track task completion status and highlight outstanding items."
	instructionEfficient       = "Prioritize efficiency; answer directly without preamble."
)

// preferenceReader is the slice of the cache layer the applier needs
type preferenceReader interface {
	Get(ctx context.Context, userID string) (models.PreferenceSet, error)
}

// ContextService computes effective generation parameters from stored
// preferences. It never mutates stored state and fails open: any retrieval
// failure yields the base context unchanged.
type ContextService struct {
	prefs   preferenceReader
	metrics *Metrics
}

// NewContextService creates a new context service
func NewContextService(prefs preferenceReader, metrics *Metrics) *ContextService {
	return &ContextService{prefs: prefs, metrics: metrics}
}

// Apply derives the effective context for one generation call
func (s *ContextService) Apply(ctx context.Context, userID string, base models.GenerationContext) models.GenerationContext {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ApplyLatency.Observe(time.Since(start).Seconds())
		}
	}()

	set, err := s.prefs.Get(ctx, userID)
	if err != nil {
		log.Printf("⚠️ [CONTEXT] Preference retrieval failed for user %s, using base context: %v", userID, err)
		return base
	}

	return ApplyPreferences(set, base)
}

// ApplyPreferences is the pure transform behind Apply. Rules run in a fixed
// order, each operating on the already-adjusted values of prior rules.
// Identical inputs always yield identical output.
func ApplyPreferences(set models.PreferenceSet, base models.GenerationContext) models.GenerationContext {
	effective := base
	var instructions []string

	// 1. Word tree formatting: structural instruction only
	if active(set, models.PreferenceTypeFormat, models.PreferenceKeyResponseFormat, models.PreferenceValueWordTree) {
		instructions = append(instructions, instructionWordTree)
	}

	// 2./3. Communication style: brief wins over detailed
	if active(set, models.PreferenceTypeStyle, models.PreferenceKeyCommunicationStyle, models.PreferenceValueBrief) {
		effective.Temperature = math.Max(temperatureFloor, effective.Temperature-briefTemperatureDelta)
		if effective.MaxTokens > briefMaxTokens {
			effective.MaxTokens = briefMaxTokens
		}
		instructions = append(instructions, instructionBrief)
	} else if active(set, models.PreferenceTypeStyle, models.PreferenceKeyCommunicationStyle, models.PreferenceValueDetailed) {
		effective.Temperature = math.Min(temperatureCeil, effective.Temperature+detailedTemperatureDelta)
		if effective.MaxTokens < detailedMinTokens {
			effective.MaxTokens = detailedMinTokens
		}
		instructions = append(instructions, instructionDetailed)
	}

	// 4. Completion focus: tracking instruction only
	if active(set, models.PreferenceTypePriority, models.PreferenceKeyTaskEmphasis, models.PreferenceValueCompletionFocus) {
		instructions = append(instructions, instructionCompletionFocus)
	}

	// 5. Response speed
	if active(set, models.PreferenceTypeStyle, models.PreferenceKeyResponseSpeed, models.PreferenceValueEfficient) {
		effective.Temperature = math.Max(temperatureFloor, effective.Temperature-efficientTemperatureDelta)
		instructions = append(instructions, instructionEfficient)
	}

	if len(instructions) > 0 {
		joined := strings.Join(instructions, " ")
		if effective.SystemPromptAddition == "" {
			effective.SystemPromptAddition = joined
		} else {
			effective.SystemPromptAddition += " " + joined
		}
	}

	return effective
}

// active reports whether the (type, key) preference holds the given string
// value with enough confidence to influence generation
func active(set models.PreferenceSet, prefType, prefKey, value string) bool {
	setting, ok := set.Lookup(prefType, prefKey)
	if !ok || setting.Confidence < minApplyConfidence {
		return false
	}
	return setting.Value.IsString(value)
}
