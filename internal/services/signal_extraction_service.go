package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"attune/internal/models"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ExtractionRule describes one deterministic signal detector. Exactly one
// predicate group is used per rule: keyword matching when Keywords is set,
// otherwise the length bounds.
//
// Expected value shapes per (type, key) pair:
//   - (format, response_format): string, e.g. "word_tree"
//   - (style, communication_style): string, "brief" or "detailed"
//   - (priority, task_emphasis): string, e.g. "completion_focus"
//   - (style, response_speed): string, e.g. "efficient"
type ExtractionRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords,omitempty"` // fires when any keyword is present

	// MaxLength fires when the message is shorter and contains no question
	// mark; MinLength fires when the message is longer
	MaxLength int `yaml:"max_length,omitempty"`
	MinLength int `yaml:"min_length,omitempty"`

	PreferenceType string  `yaml:"preference_type"`
	PreferenceKey  string  `yaml:"preference_key"`
	Value          string  `yaml:"value"`
	Confidence     float64 `yaml:"confidence"`
}

// Matches reports whether the rule fires for the lowercased message
func (r ExtractionRule) Matches(lowered string) bool {
	if len(r.Keywords) > 0 {
		for _, kw := range r.Keywords {
			if strings.Contains(lowered, kw) {
				return true
			}
		}
		return false
	}
	// Length bounds are in characters, not bytes
	if r.MaxLength > 0 {
		return utf8.RuneCountInString(lowered) < r.MaxLength && !strings.Contains(lowered, "?")
	}
	if r.MinLength > 0 {
		return utf8.RuneCountInString(lowered) > r.MinLength
	}
	return false
}

// DefaultExtractionRules returns the built-in rule set
func DefaultExtractionRules() []ExtractionRule {
	return []ExtractionRule{
		{
			Name:           "word_tree_format",
			Keywords:       []string{"word tree", "tree format"},
			PreferenceType: models.PreferenceTypeFormat,
			PreferenceKey:  models.PreferenceKeyResponseFormat,
			Value:          models.PreferenceValueWordTree,
			Confidence:     0.8,
		},
		{
			Name:           "brief_style",
			MaxLength:      50,
			PreferenceType: models.PreferenceTypeStyle,
			PreferenceKey:  models.PreferenceKeyCommunicationStyle,
			Value:          models.PreferenceValueBrief,
			Confidence:     0.6,
		},
		{
			Name:           "detailed_style",
			MinLength:      200,
			PreferenceType: models.PreferenceTypeStyle,
			PreferenceKey:  models.PreferenceKeyCommunicationStyle,
			Value:          models.PreferenceValueDetailed,
			Confidence:     0.4,
		},
		{
			Name:           "completion_focus",
			Keywords:       []string{"important", "critical", "must", "urgent", "priority"},
			PreferenceType: models.PreferenceTypePriority,
			PreferenceKey:  models.PreferenceKeyTaskEmphasis,
			Value:          models.PreferenceValueCompletionFocus,
			Confidence:     0.7,
		},
		{
			Name:           "efficient_speed",
			Keywords:       []string{"quick", "fast", "efficient"},
			PreferenceType: models.PreferenceTypeStyle,
			PreferenceKey:  models.PreferenceKeyResponseSpeed,
			Value:          models.PreferenceValueEfficient,
			Confidence:     0.6,
		},
	}
}

// SignalExtractionService turns one message/response interaction into zero or
// more weighted preference signals. Rules are non-exclusive; any subset may
// fire. Malformed or empty input resolves to "no signal", never an error.
type SignalExtractionService struct {
	mu      sync.RWMutex
	rules   []ExtractionRule
	metrics *Metrics
}

// NewSignalExtractionService creates an extraction service with the built-in rules
func NewSignalExtractionService(metrics *Metrics) *SignalExtractionService {
	return &SignalExtractionService{
		rules:   DefaultExtractionRules(),
		metrics: metrics,
	}
}

// Rules returns a copy of the active rule set
func (s *SignalExtractionService) Rules() []ExtractionRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExtractionRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// SetRules replaces the active rule set after validating it
func (s *SignalExtractionService) SetRules(rules []ExtractionRule) error {
	for _, r := range rules {
		if r.PreferenceType == "" || r.PreferenceKey == "" || r.Value == "" {
			return fmt.Errorf("rule %q: preference_type, preference_key and value are required", r.Name)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("rule %q: confidence %.2f outside [0,1]", r.Name, r.Confidence)
		}
		if len(r.Keywords) == 0 && r.MaxLength == 0 && r.MinLength == 0 {
			return fmt.Errorf("rule %q: no predicate (keywords or length bound)", r.Name)
		}
	}

	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
	return nil
}

// Extract evaluates every rule against the user message. Rules are
// order-independent; the result is deterministic for identical input.
// An empty message yields an empty slice.
func (s *SignalExtractionService) Extract(message, response string, _ time.Time) []models.Signal {
	if strings.TrimSpace(message) == "" {
		return nil
	}

	lowered := strings.ToLower(message)

	s.mu.RLock()
	rules := s.rules
	s.mu.RUnlock()

	var signals []models.Signal
	for _, rule := range rules {
		if !rule.Matches(lowered) {
			continue
		}
		signals = append(signals, models.Signal{
			PreferenceType: rule.PreferenceType,
			PreferenceKey:  rule.PreferenceKey,
			Value:          models.StringValue(rule.Value),
			Confidence:     rule.Confidence,
		})
		if s.metrics != nil {
			s.metrics.SignalsExtracted.WithLabelValues(rule.PreferenceType).Inc()
		}
	}

	return signals
}

// LoadRulesFile replaces the rule set from a YAML file
func (s *SignalExtractionService) LoadRulesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules []ExtractionRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	if err := s.SetRules(rules); err != nil {
		return err
	}

	log.Printf("📖 [EXTRACTION] Loaded %d extraction rules from %s", len(rules), path)
	return nil
}

// WatchRulesFile reloads the rule set whenever the file changes. Blocks until
// the context-free watcher fails or stopCh closes; run in a goroutine.
func (s *SignalExtractionService) WatchRulesFile(path string, stopCh <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}

	log.Printf("👀 [EXTRACTION] Watching %s for rule changes", path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.LoadRulesFile(path); err != nil {
				log.Printf("⚠️ [EXTRACTION] Rules reload failed, keeping previous set: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("⚠️ [EXTRACTION] Rules watcher error: %v", err)
		case <-stopCh:
			return nil
		}
	}
}
