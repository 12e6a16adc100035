package services

import (
	"fmt"
	"testing"

	"attune/internal/models"

	"github.com/go-sql-driver/mysql"
)

func newTestStore() *PreferenceStoreService {
	return &PreferenceStoreService{config: DefaultStoreConfig()}
}

func TestReinforceConvergesBoundedBelowOne(t *testing.T) {
	svc := newTestStore()

	confidence := 0.6
	prev := confidence
	prevIncrement := 1.0

	for i := 0; i < 100; i++ {
		confidence = svc.reinforce(confidence)

		if confidence > 1.0 {
			t.Fatalf("step %d: confidence %.6f exceeds 1.0", i, confidence)
		}
		if confidence <= prev {
			t.Fatalf("step %d: confidence did not increase (%.6f -> %.6f)", i, prev, confidence)
		}

		increment := confidence - prev
		if increment >= prevIncrement {
			t.Fatalf("step %d: increment %.6f not strictly diminishing (prev %.6f)", i, increment, prevIncrement)
		}

		prev = confidence
		prevIncrement = increment
	}
}

func TestReinforceSingleStep(t *testing.T) {
	svc := newTestStore()

	// 0.6 + 0.1 * (1 - 0.6) = 0.64
	got := svc.reinforce(0.6)
	if got < 0.6399 || got > 0.6401 {
		t.Errorf("expected 0.64, got %.4f", got)
	}
}

func TestDecayHalvesWithFloor(t *testing.T) {
	svc := newTestStore()

	tests := []struct {
		in   float64
		want float64
	}{
		{0.8, 0.4},
		{0.4, 0.2},
		{0.2, 0.1},
		{0.1, 0.05},
		{0.05, 0.05}, // floor holds
		{0.02, 0.05}, // never below the floor
	}

	for _, tt := range tests {
		if got := svc.decay(tt.in); got != tt.want {
			t.Errorf("decay(%.2f) = %.4f, want %.4f", tt.in, got, tt.want)
		}
	}
}

func TestResolveUpsert(t *testing.T) {
	svc := newTestStore()

	brief := models.StringValue(models.PreferenceValueBrief)
	detailed := models.StringValue(models.PreferenceValueDetailed)

	tests := []struct {
		name           string
		existing       *storedPreference
		signal         models.Signal
		wantOutcome    UpsertOutcome
		wantConfidence float64
		wantUsage      int64
	}{
		{
			name:           "no prior record creates",
			existing:       nil,
			signal:         models.Signal{Value: brief, Confidence: 0.6},
			wantOutcome:    UpsertCreated,
			wantConfidence: 0.6,
			wantUsage:      1,
		},
		{
			name:           "same value reinforces",
			existing:       &storedPreference{value: brief, confidence: 0.6, usageCount: 3},
			signal:         models.Signal{Value: brief, Confidence: 0.6},
			wantOutcome:    UpsertReinforced,
			wantConfidence: 0.64,
			wantUsage:      4,
		},
		{
			name:           "reinforcement ignores weaker incoming confidence",
			existing:       &storedPreference{value: brief, confidence: 0.9, usageCount: 5},
			signal:         models.Signal{Value: brief, Confidence: 0.1},
			wantOutcome:    UpsertReinforced,
			wantConfidence: 0.91,
			wantUsage:      6,
		},
		{
			name:           "stronger contradiction replaces and resets usage",
			existing:       &storedPreference{value: brief, confidence: 0.5, usageCount: 7},
			signal:         models.Signal{Value: detailed, Confidence: 0.8},
			wantOutcome:    UpsertReplaced,
			wantConfidence: 0.8,
			wantUsage:      1,
		},
		{
			name:           "weaker contradiction retains incumbent",
			existing:       &storedPreference{value: brief, confidence: 0.8, usageCount: 7},
			signal:         models.Signal{Value: detailed, Confidence: 0.5},
			wantOutcome:    UpsertRetained,
			wantConfidence: 0.8,
			wantUsage:      7,
		},
		{
			name:           "tie retains incumbent",
			existing:       &storedPreference{value: brief, confidence: 0.6, usageCount: 2},
			signal:         models.Signal{Value: detailed, Confidence: 0.6},
			wantOutcome:    UpsertRetained,
			wantConfidence: 0.6,
			wantUsage:      2,
		},
		{
			name:           "created confidence clamps above 1",
			existing:       nil,
			signal:         models.Signal{Value: brief, Confidence: 1.7},
			wantOutcome:    UpsertCreated,
			wantConfidence: 1.0,
			wantUsage:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, confidence, usage := svc.resolveUpsert(tt.existing, tt.signal)

			if outcome != tt.wantOutcome {
				t.Errorf("outcome = %q, want %q", outcome, tt.wantOutcome)
			}
			if confidence < tt.wantConfidence-0.0001 || confidence > tt.wantConfidence+0.0001 {
				t.Errorf("confidence = %.4f, want %.4f", confidence, tt.wantConfidence)
			}
			if usage != tt.wantUsage {
				t.Errorf("usage = %d, want %d", usage, tt.wantUsage)
			}
		})
	}
}

func TestDuplicateEntryDetection(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"duplicate key", dup, true},
		{"wrapped duplicate key", fmt.Errorf("lost create race: %w", dup), true},
		{"other mysql error", &mysql.MySQLError{Number: 1045}, false},
		{"plain error", fmt.Errorf("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicateEntry(tt.err); got != tt.want {
				t.Errorf("isDuplicateEntry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.644, 0.64},
		{0.125, 0.13}, // half rounds away from zero
		{0.05, 0.05},
		{1.0, 1.0},
	}

	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
