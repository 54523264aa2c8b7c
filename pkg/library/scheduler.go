package library

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wachiwi/pi-camcorder/pkg/logger"
)

// Scheduler prunes the library on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler registers a prune job on schedule (standard cron syntax or
// descriptors such as "@daily").
func NewScheduler(l *Library, schedule string, maxAge time.Duration, keepLatest int) (*Scheduler, error) {
	cronLogger := &logger.CronLogger{Logger: slog.Default()}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
	)

	_, err := c.AddFunc(schedule, func() {
		removed, err := l.Prune(maxAge, keepLatest)
		if err != nil {
			slog.Error("Failed to prune recordings", "error", err)
		}
		slog.Debug("Retention run finished", "removed", len(removed))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running prune until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
