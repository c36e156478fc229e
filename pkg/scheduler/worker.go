package scheduler

import (
	"context"
	"time"
)

// Run drives SendReminders once immediately, then on every tick of
// interval, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, batchSize int) {
	s.log.Info("reminder scheduler started", "interval", interval, "batch_size", batchSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(batchSize)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(batchSize)
		}
	}
}

func (s *Scheduler) runOnce(batchSize int) {
	result, err := s.SendReminders(batchSize)
	if err != nil {
		s.log.Error("sending reminders failed", "error", err)
		return
	}
	if result.Sent > 0 || result.Failed > 0 || result.RateLimited > 0 {
		s.log.Info("reminder batch complete",
			"sent", result.Sent, "failed", result.Failed, "rate_limited", result.RateLimited, "skipped", result.Skipped)
	}
}
