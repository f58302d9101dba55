package worker

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/reelsip/internal/config"
)

// cycleUniqueTTL dedupes ticks enqueued by more than one scheduler. It is
// shorter than any cron interval so a long cycle never suppresses the next tick.
const cycleUniqueTTL = time.Minute

// NewCycleTask builds the periodic cycle task. A tick is never retried;
// the next tick picks up whatever is still due. The timeout bounds the whole
// cycle, not a single rule.
func NewCycleTask(timeout time.Duration) *asynq.Task {
	return asynq.NewTask(
		TaskRecurringCycle,
		nil, // Empty payload - handler will query all active rules
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Retention(time.Hour),
		asynq.Unique(cycleUniqueTTL),
	)
}

// StartScheduler creates and starts an Asynq Scheduler for periodic tasks.
// Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: cfg.Location(),
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	entryID, err := scheduler.Register(cfg.CycleSchedule, NewCycleTask(cfg.CycleTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to register recurring cycle schedule: %w", err)
	}

	// Start scheduler (non-blocking)
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info(
		"Scheduler started",
		"schedule", cfg.CycleSchedule,
		"timezone", cfg.ScheduleTimezone,
		"entry_id", entryID,
	)

	return func() { scheduler.Shutdown() }, nil
}
