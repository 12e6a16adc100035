package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"attune/internal/services"

	"github.com/go-co-op/gocron/v2"
)

// PatternRefreshJob recomputes behavior patterns overnight for every user
// active in the last day, so interactive pattern requests mostly hit fresh
// rows
type PatternRefreshJob struct {
	scheduler     gocron.Scheduler
	conversations *services.ConversationLogService
	analyzer      *services.PatternAnalysisService
	lookback      time.Duration
}

// NewPatternRefreshJob creates the nightly pattern refresh job
func NewPatternRefreshJob(conversations *services.ConversationLogService, analyzer *services.PatternAnalysisService) (*PatternRefreshJob, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &PatternRefreshJob{
		scheduler:     scheduler,
		conversations: conversations,
		analyzer:      analyzer,
		lookback:      24 * time.Hour,
	}, nil
}

// Start registers the nightly run and starts the scheduler
func (j *PatternRefreshJob) Start() error {
	_, err := j.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			j.Run(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to register pattern refresh job: %w", err)
	}

	j.scheduler.Start()
	log.Println("⏰ [PATTERN-REFRESH] Nightly pattern refresh scheduled (03:00 UTC)")
	return nil
}

// Stop shuts the scheduler down
func (j *PatternRefreshJob) Stop() error {
	return j.scheduler.Shutdown()
}

// Run refreshes patterns for every recently active user. Per-user failures
// are logged and skipped.
func (j *PatternRefreshJob) Run(ctx context.Context) {
	since := time.Now().Add(-j.lookback)

	userIDs, err := j.conversations.ActiveUserIDs(ctx, since)
	if err != nil {
		log.Printf("❌ [PATTERN-REFRESH] Failed to list active users: %v", err)
		return
	}

	refreshed := 0
	for _, userID := range userIDs {
		if _, err := j.analyzer.Analyze(ctx, userID); err != nil {
			log.Printf("⚠️ [PATTERN-REFRESH] Analysis failed for user %s: %v", userID, err)
			continue
		}
		refreshed++
	}

	log.Printf("✅ [PATTERN-REFRESH] Refreshed patterns for %d/%d active users", refreshed, len(userIDs))
}
