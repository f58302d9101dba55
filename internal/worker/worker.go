package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/reelsip/internal/config"
	"github.com/jimdaga/reelsip/internal/recurring"
	"github.com/jimdaga/reelsip/internal/rules"
)

// CycleRunner runs recurring content cycles. *recurring.Cycle implements it.
type CycleRunner interface {
	Run(ctx context.Context) (recurring.Summary, error)
	RunOne(ctx context.Context, ruleID string) (string, error)
}

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

// Implement asynq.Logger interface methods
func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, runner CycleRunner) error {
	srv, mux, err := newServer(cfg, runner)
	if err != nil {
		return err
	}

	// Note: Scheduler is started separately in main.go worker mode
	// and deferred there for shutdown coordination.
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, runner CycleRunner) (stop func(), err error) {
	srv, mux, err := newServer(cfg, runner)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, runner CycleRunner) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	// Rules are processed sequentially inside a cycle; extra concurrency only
	// serves manual runs.
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     2,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	logger.Info("Worker starting", "concurrency", 2, "redis", cfg.RedisURL)
	return srv, NewServeMux(logger, runner), nil
}

// NewServeMux registers the recurring content task handlers.
func NewServeMux(logger *slog.Logger, runner CycleRunner) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskRecurringCycle, handleRecurringCycle(logger, runner))
	mux.HandleFunc(TaskRunRule, handleRunRule(logger, runner))
	return mux
}

// handleRecurringCycle runs one evaluation cycle over all active rules.
func handleRecurringCycle(logger *slog.Logger, runner CycleRunner) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		summary, err := runner.Run(ctx)
		if errors.Is(err, recurring.ErrCycleInProgress) {
			logger.Warn("Previous recurring cycle still running, skipping tick")
			return nil
		}
		if err != nil {
			return fmt.Errorf("recurring cycle failed: %w", err)
		}

		logger.Debug("Recurring cycle task done", "evaluated", summary.Evaluated, "due", summary.Due)
		return nil
	}
}

// handleRunRule processes one rule immediately. Pipeline failures are recorded
// as rule outcomes and not retried; a repeat could publish the same video twice.
func handleRunRule(logger *slog.Logger, runner CycleRunner) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload struct {
			RuleID string `json:"rule_id"`
		}
		if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.RuleID == "" {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		logger.Info("Processing recurring:run task", "rule_id", payload.RuleID)

		status, err := runner.RunOne(ctx, payload.RuleID)
		if err != nil {
			if errors.Is(err, rules.ErrNotFound) {
				logger.Error("Recurring rule not found", "rule_id", payload.RuleID)
				return fmt.Errorf("rule not found: %w", asynq.SkipRetry)
			}
			// Database error - retryable
			return fmt.Errorf("failed to load rule: %w", err)
		}

		logger.Info("Recurring rule run finished", "rule_id", payload.RuleID, "status", status)
		return nil
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		// Check if this is the final failure (task will move to dead letter queue)
		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
