package services

import (
	"strings"
	"testing"
	"time"

	"attune/internal/models"
)

func msgs(contents ...string) []models.ConversationMessage {
	out := make([]models.ConversationMessage, len(contents))
	for i, c := range contents {
		out[i] = models.ConversationMessage{
			UserID:      "u1",
			Content:     c,
			MessageType: models.MessageTypeUser,
		}
	}
	return out
}

func TestComputePatternsEmptyWindow(t *testing.T) {
	got := ComputePatterns("u1", nil, DefaultAnalysisConfig(), time.Now())

	if got.WindowSize != 0 {
		t.Errorf("window size = %d, want 0", got.WindowSize)
	}
	if got.HighCompletionRate || got.PrefersBrief || got.PrefersDetailed || got.FrequentUrgentTasks {
		t.Errorf("empty window must detect nothing: %+v", got)
	}
	if got.MonitoringLevel != models.MonitoringLevelStandard {
		t.Errorf("monitoring level = %q, want standard", got.MonitoringLevel)
	}
}

func TestComputePatternsCompletionRate(t *testing.T) {
	messages := msgs(
		"mark that task as done",
		"what is the weather like",
		"this one is critical, finish it first",
		"tell me a joke",
	)

	got := ComputePatterns("u1", messages, DefaultAnalysisConfig(), time.Now())

	if !almostEqual(got.CompletionRate, 0.5) {
		t.Errorf("completion rate = %.2f, want 0.50", got.CompletionRate)
	}
	if !got.HighCompletionRate {
		t.Error("expected high completion rate above the 0.3 threshold")
	}
}

func TestComputePatternsBriefVsDetailed(t *testing.T) {
	brief := ComputePatterns("u1", msgs("ok", "thanks", "do it"), DefaultAnalysisConfig(), time.Now())
	if !brief.PrefersBrief || brief.PrefersDetailed {
		t.Errorf("short messages should read as brief: %+v", brief)
	}

	long := strings.Repeat("please walk me through every step in depth ", 5)
	detailed := ComputePatterns("u1", msgs(long, long), DefaultAnalysisConfig(), time.Now())
	if !detailed.PrefersDetailed || detailed.PrefersBrief {
		t.Errorf("long messages should read as detailed: %+v", detailed)
	}
}

func TestComputePatternsUrgencyAndEscalation(t *testing.T) {
	messages := msgs(
		"this is urgent, finish the report",
		"need it asap, it is critical",
		"do this immediately please, must be done",
		"urgent again, complete it",
		"right away if possible, priority task",
	)

	got := ComputePatterns("u1", messages, DefaultAnalysisConfig(), time.Now())

	if got.UrgentMessageCount != 5 {
		t.Errorf("urgent count = %d, want 5", got.UrgentMessageCount)
	}
	if !got.FrequentUrgentTasks {
		t.Error("expected frequent urgent tasks at the threshold")
	}
	if !got.HighCompletionRate {
		t.Errorf("expected high completion rate, got %.2f", got.CompletionRate)
	}

	// Urgency plus completion focus together tighten oversight
	if got.MonitoringLevel != models.MonitoringLevelElevated {
		t.Errorf("monitoring level = %q, want elevated", got.MonitoringLevel)
	}
	if !almostEqual(got.EscalationThreshold, 0.5) {
		t.Errorf("escalation threshold = %.2f, want 0.50", got.EscalationThreshold)
	}
}

func TestComputePatternsUrgencyFiresStrictlyAboveThreshold(t *testing.T) {
	atThreshold := msgs(
		"urgent one", "asap two", "immediately three", "urgent four",
	)
	got := ComputePatterns("u1", atThreshold, DefaultAnalysisConfig(), time.Now())
	if got.UrgentMessageCount != 4 {
		t.Fatalf("urgent count = %d, want 4", got.UrgentMessageCount)
	}
	if got.FrequentUrgentTasks {
		t.Error("4 urgent messages must not exceed the threshold of 4")
	}

	above := append(atThreshold, msgs("right away five")...)
	got = ComputePatterns("u1", above, DefaultAnalysisConfig(), time.Now())
	if !got.FrequentUrgentTasks {
		t.Errorf("5 urgent messages must exceed the threshold, got %+v", got)
	}
}

func TestComputePatternsDeterministic(t *testing.T) {
	messages := msgs("urgent task, do it now", "ok", "mark it done")
	at := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)

	first := ComputePatterns("u1", messages, DefaultAnalysisConfig(), at)
	for i := 0; i < 5; i++ {
		again := ComputePatterns("u1", messages, DefaultAnalysisConfig(), at)
		if again.CompletionRate != first.CompletionRate ||
			again.UrgentMessageCount != first.UrgentMessageCount ||
			again.MeanMessageLength != first.MeanMessageLength ||
			again.MonitoringLevel != first.MonitoringLevel {
			t.Fatalf("run %d: non-deterministic aggregates: %+v vs %+v", i, again, first)
		}
	}
}

func TestPatternRowsOnlyForDetections(t *testing.T) {
	quiet := models.BehaviorPatterns{UserID: "u1"}
	if rows := patternRows(quiet); len(rows) != 0 {
		t.Errorf("no detections should produce no rows, got %+v", rows)
	}

	busy := models.BehaviorPatterns{
		UserID:              "u1",
		HighCompletionRate:  true,
		CompletionRate:      0.6,
		PrefersBrief:        true,
		FrequentUrgentTasks: true,
		UrgentMessageCount:  6,
		WindowSize:          50,
	}
	rows := patternRows(busy)
	if len(rows) != 3 {
		t.Fatalf("expected 3 pattern rows, got %d", len(rows))
	}

	types := map[string]bool{}
	for _, row := range rows {
		types[row.PatternType] = true
	}
	for _, want := range []string{
		models.PatternTypeCompletionFocus,
		models.PatternTypeVerbosity,
		models.PatternTypeUrgency,
	} {
		if !types[want] {
			t.Errorf("missing pattern row %q", want)
		}
	}
}
