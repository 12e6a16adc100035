package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"attune/internal/database"
	"attune/internal/models"

	"github.com/go-sql-driver/mysql"
)

// ErrStoreUnavailable is returned when the backing persistence cannot be
// reached. Callers degrade to safe defaults instead of propagating it to the
// generation pipeline.
var ErrStoreUnavailable = errors.New("preference store unavailable")

// UpsertOutcome describes what an upsert did to the stored preference
type UpsertOutcome string

const (
	UpsertCreated    UpsertOutcome = "created"
	UpsertReinforced UpsertOutcome = "reinforced"
	UpsertReplaced   UpsertOutcome = "replaced"
	UpsertRetained   UpsertOutcome = "retained"
)

// StoreConfig holds the reinforcement and decay constants
type StoreConfig struct {
	ReinforcementRate float64 // Default: 0.1
	DecayFactor       float64 // Default: 0.5
	ConfidenceFloor   float64 // Default: 0.05
}

// DefaultStoreConfig returns the default learning constants
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		ReinforcementRate: 0.1,
		DecayFactor:       0.5,
		ConfidenceFloor:   0.05,
	}
}

// PreferenceStoreService owns the durable per-user (type, key) -> value
// mapping with confidence scoring. Writes are last-writer-wins at (user,
// type, key) granularity; each upsert is self-contained, so no transaction
// spans a signal batch.
type PreferenceStoreService struct {
	db      *database.DB
	config  StoreConfig
	metrics *Metrics
	now     func() time.Time
}

// NewPreferenceStoreService creates a new preference store service
func NewPreferenceStoreService(db *database.DB, config StoreConfig, metrics *Metrics) *PreferenceStoreService {
	return &PreferenceStoreService{
		db:      db,
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

// reinforce applies one bounded diminishing reinforcement step
func (s *PreferenceStoreService) reinforce(confidence float64) float64 {
	next := confidence + s.config.ReinforcementRate*(1-confidence)
	return math.Min(1.0, next)
}

// decay applies one floor-limited decay step
func (s *PreferenceStoreService) decay(confidence float64) float64 {
	return math.Max(s.config.ConfidenceFloor, confidence*s.config.DecayFactor)
}

// storedPreference is the merge-relevant subset of a persisted row
type storedPreference struct {
	value      models.PreferenceValue
	confidence float64
	usageCount int64
}

// resolveUpsert decides how an incoming signal merges with the stored state.
// existing == nil means no prior record.
func (s *PreferenceStoreService) resolveUpsert(existing *storedPreference, signal models.Signal) (UpsertOutcome, float64, int64) {
	incoming := clamp01(signal.Confidence)

	if existing == nil {
		return UpsertCreated, incoming, 1
	}

	if existing.value.Equal(signal.Value) {
		return UpsertReinforced, s.reinforce(existing.confidence), existing.usageCount + 1
	}

	// Contradicting signal: a strictly higher-confidence signal is treated
	// as a correction and replaces the incumbent; otherwise the incumbent
	// wins, ties included.
	if incoming > existing.confidence {
		return UpsertReplaced, incoming, 1
	}

	return UpsertRetained, existing.confidence, existing.usageCount
}

// Upsert merges one signal into the store. A lost race on first insert
// (concurrent first signals for the same key) is retried once so the loser
// merges against the winner's row instead of failing.
func (s *PreferenceStoreService) Upsert(ctx context.Context, userID string, signal models.Signal) (UpsertOutcome, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID is required")
	}
	if err := signal.Value.Validate(); err != nil {
		return "", fmt.Errorf("invalid signal value: %w", err)
	}

	outcome, err := s.upsertOnce(ctx, userID, signal)
	if err != nil && isDuplicateEntry(err) {
		outcome, err = s.upsertOnce(ctx, userID, signal)
	}
	return outcome, err
}

func (s *PreferenceStoreService) upsertOnce(ctx context.Context, userID string, signal models.Signal) (UpsertOutcome, error) {
	existing, err := s.getOne(ctx, userID, signal.PreferenceType, signal.PreferenceKey)
	if err != nil {
		return "", err
	}

	outcome, confidence, usage := s.resolveUpsert(existing, signal)

	switch outcome {
	case UpsertCreated:
		encoded, err := models.EncodeValue(signal.Value)
		if err != nil {
			return "", fmt.Errorf("failed to encode preference value: %w", err)
		}
		now := s.now().UTC()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO user_preferences
				(user_id, preference_type, preference_key, preference_value, confidence_score, usage_count, created_at, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, signal.PreferenceType, signal.PreferenceKey, encoded, round2(confidence), usage, now, now)
		if err != nil {
			if isDuplicateEntry(err) {
				return "", fmt.Errorf("lost create race for %s.%s: %w", signal.PreferenceType, signal.PreferenceKey, err)
			}
			return "", s.unavailable("failed to insert preference", err)
		}

	case UpsertReinforced:
		_, err = s.db.ExecContext(ctx, `
			UPDATE user_preferences
			SET confidence_score = ?, usage_count = ?, last_updated = ?
			WHERE user_id = ? AND preference_type = ? AND preference_key = ?`,
			round2(confidence), usage, s.now().UTC(), userID, signal.PreferenceType, signal.PreferenceKey)
		if err != nil {
			return "", s.unavailable("failed to reinforce preference", err)
		}

	case UpsertReplaced:
		encoded, err := models.EncodeValue(signal.Value)
		if err != nil {
			return "", fmt.Errorf("failed to encode preference value: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE user_preferences
			SET preference_value = ?, confidence_score = ?, usage_count = ?, last_updated = ?
			WHERE user_id = ? AND preference_type = ? AND preference_key = ?`,
			encoded, round2(confidence), usage, s.now().UTC(), userID, signal.PreferenceType, signal.PreferenceKey)
		if err != nil {
			return "", s.unavailable("failed to replace preference", err)
		}
		log.Printf("🔁 [PREF-STORE] Replaced %s.%s for user %s (correction at confidence %.2f)",
			signal.PreferenceType, signal.PreferenceKey, userID, confidence)

	case UpsertRetained:
		// Incumbent wins; no write.
	}

	if s.metrics != nil {
		s.metrics.PreferenceUpserts.WithLabelValues(string(outcome)).Inc()
	}

	return outcome, nil
}

// Get returns the full nested type -> key -> setting mapping for a user.
// A user with no preferences gets an empty, non-nil set.
func (s *PreferenceStoreService) Get(ctx context.Context, userID string) (models.PreferenceSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT preference_type, preference_key, preference_value, confidence_score
		FROM user_preferences
		WHERE user_id = ?`, userID)
	if err != nil {
		return nil, s.unavailable("failed to query preferences", err)
	}
	defer rows.Close()

	set := models.PreferenceSet{}
	for rows.Next() {
		var prefType, prefKey string
		var rawValue []byte
		var confidence float64
		if err := rows.Scan(&prefType, &prefKey, &rawValue, &confidence); err != nil {
			return nil, s.unavailable("failed to scan preference", err)
		}

		value, err := models.DecodeValue(rawValue)
		if err != nil {
			log.Printf("⚠️ [PREF-STORE] Skipping undecodable %s.%s for user %s: %v", prefType, prefKey, userID, err)
			continue
		}

		if set[prefType] == nil {
			set[prefType] = make(map[string]models.PreferenceSetting)
		}
		set[prefType][prefKey] = models.PreferenceSetting{Value: value, Confidence: confidence}
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("failed to iterate preferences", err)
	}

	return set, nil
}

// Reset deletes all preferences and learned patterns for a user. This is the
// only path that removes preference rows.
func (s *PreferenceStoreService) Reset(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_preferences WHERE user_id = ?`, userID); err != nil {
		return s.unavailable("failed to delete preferences", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM learning_patterns WHERE user_id = ?`, userID); err != nil {
		return s.unavailable("failed to delete learning patterns", err)
	}

	log.Printf("🗑️ [PREF-STORE] Reset all preferences for user %s", userID)
	return nil
}

// Reinforce applies one positive-feedback reinforcement step to a stored
// preference. Missing records are a no-op.
func (s *PreferenceStoreService) Reinforce(ctx context.Context, userID, prefType, prefKey string) error {
	existing, err := s.getOne(ctx, userID, prefType, prefKey)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE user_preferences
		SET confidence_score = ?, usage_count = usage_count + 1, last_updated = ?
		WHERE user_id = ? AND preference_type = ? AND preference_key = ?`,
		round2(s.reinforce(existing.confidence)), s.now().UTC(), userID, prefType, prefKey)
	if err != nil {
		return s.unavailable("failed to reinforce preference", err)
	}
	return nil
}

// Decay applies one negative-feedback decay step. The record is suppressed,
// never deleted; usage_count is untouched.
func (s *PreferenceStoreService) Decay(ctx context.Context, userID, prefType, prefKey string) error {
	existing, err := s.getOne(ctx, userID, prefType, prefKey)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE user_preferences
		SET confidence_score = ?, last_updated = ?
		WHERE user_id = ? AND preference_type = ? AND preference_key = ?`,
		round2(s.decay(existing.confidence)), s.now().UTC(), userID, prefType, prefKey)
	if err != nil {
		return s.unavailable("failed to decay preference", err)
	}
	return nil
}

// getOne fetches the merge-relevant fields of a single preference row
func (s *PreferenceStoreService) getOne(ctx context.Context, userID, prefType, prefKey string) (*storedPreference, error) {
	var rawValue []byte
	var confidence float64
	var usage int64

	err := s.db.QueryRowContext(ctx, `
		SELECT preference_value, confidence_score, usage_count
		FROM user_preferences
		WHERE user_id = ? AND preference_type = ? AND preference_key = ?`,
		userID, prefType, prefKey).Scan(&rawValue, &confidence, &usage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, s.unavailable("failed to query preference", err)
	}

	value, err := models.DecodeValue(rawValue)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored preference: %w", err)
	}

	return &storedPreference{value: value, confidence: confidence, usageCount: usage}, nil
}

// isDuplicateEntry reports whether err is the MySQL unique-key violation
// (error 1062) raised when two first signals race on the same key
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func (s *PreferenceStoreService) unavailable(op string, err error) error {
	if s.metrics != nil {
		s.metrics.StoreErrors.Inc()
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// round2 rounds to the two-decimal precision of the confidence_score column.
// Only applied at the persistence boundary; in-memory math stays float64.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
