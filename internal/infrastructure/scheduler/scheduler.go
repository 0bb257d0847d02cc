package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires a callback on a standard 5-field cron expression
// (minute hour day-of-month month day-of-week). Examples: "0 * * * *"
// (hourly), "*/30 * * * *" (every 30 minutes), "0 6 * * 1-5" (weekday
// mornings).
type Scheduler struct {
	schedule cron.Schedule
	spec     string
	logger   *slog.Logger
}

func New(spec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty cron expression")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return &Scheduler{schedule: schedule, spec: spec, logger: logger}, nil
}

// Run sleeps until each next fire time and invokes fn. Run returns when the
// context is cancelled; fn errors are logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context, name string, fn func(context.Context) error) {
	s.logger.Info("scheduler_started", "task", name, "cron", s.spec)

	for {
		now := time.Now()
		next := s.schedule.Next(now)
		wait := next.Sub(now)
		s.logger.Info("scheduler_next_run", "task", name, "at", next.Format(time.RFC3339), "in", wait.Round(time.Second).String())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler_stopped", "task", name)
			return
		case <-timer.C:
		}

		if err := fn(ctx); err != nil {
			s.logger.Error("scheduled_task_failed", "task", name, "error", err)
		}
	}
}
