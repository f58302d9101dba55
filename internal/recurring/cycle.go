package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jimdaga/reelsip/internal/metrics"
	"github.com/jimdaga/reelsip/internal/models"
)

// RuleStore loads rules and records when they fired.
type RuleStore interface {
	ListActive(ctx context.Context) ([]models.RecurringRule, error)
	Find(ctx context.Context, id string) (*models.RecurringRule, error)
	MarkFired(ctx context.Context, id string, at time.Time) error
}

// Processor runs the generation pipeline for one rule.
type Processor interface {
	Process(ctx context.Context, rule models.RecurringRule) (*Result, error)
}

// Locker guards a rule against being processed by two workers at once.
// Acquire reports false when the key is already held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Outcome is the report of one attempt to fire a rule.
type Outcome struct {
	RunID          string
	RuleID         string
	OrganizationID string
	Status         string // models.RuleRunStatus*
	Step           string
	ErrorKind      string
	Error          string
	PostGroup      string
	StartedAt      time.Time
	CompletedAt    time.Time
}

// OutcomeRecorder receives rule outcomes. Recording failures are logged and
// never affect processing.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome Outcome) error
}

// Summary counts what happened during one cycle.
type Summary struct {
	Evaluated int
	Due       int
	Completed int
	Failed    int
	Skipped   int
	Malformed int
}

// CycleConfig configures a Cycle.
type CycleConfig struct {
	Store     RuleStore
	Processor Processor
	Locker    Locker          // optional
	Recorder  OutcomeRecorder // optional
	Logger    *slog.Logger
	Location  *time.Location
	LockTTL   time.Duration
	Clock     func() time.Time

	// RuleTimeout bounds the processing of a single rule. Each rule gets
	// its own deadline, detached from the cycle's. Defaults to LockTTL.
	RuleTimeout time.Duration
}

// Cycle evaluates all active rules and fires the due ones, one at a time.
// Only one Run may be active per Cycle.
type Cycle struct {
	cfg     CycleConfig
	running atomic.Bool
}

// NewCycle creates a Cycle.
func NewCycle(cfg CycleConfig) *Cycle {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 45 * time.Minute
	}
	if cfg.RuleTimeout <= 0 || cfg.RuleTimeout > cfg.LockTTL {
		cfg.RuleTimeout = cfg.LockTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Cycle{cfg: cfg}
}

func (c *Cycle) now() time.Time {
	return c.cfg.Clock().In(c.cfg.Location)
}

// Run performs one evaluation cycle. It fails only if the rules cannot be
// listed or another Run is in progress; per-rule failures are logged and
// counted in the summary.
func (c *Cycle) Run(ctx context.Context) (Summary, error) {
	if !c.running.CompareAndSwap(false, true) {
		metrics.CyclesSkipped.Inc()
		return Summary{}, ErrCycleInProgress
	}
	defer c.running.Store(false)

	logger := c.cfg.Logger
	start := time.Now()
	now := c.now()
	logger.Info("Checking for due recurring content", "now", now.Format(time.RFC3339), "weekday", WeekdayCode(now))

	rules, err := c.cfg.Store.ListActive(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list active rules: %w", err)
	}

	summary := Summary{Evaluated: len(rules)}
	var due []models.RecurringRule
	for _, rule := range rules {
		verdict, err := Evaluate(rule, now)
		if err != nil {
			summary.Malformed++
			logger.Warn("Excluding rule with malformed schedule", "rule_id", rule.ID, "error", err)
			continue
		}
		if verdict != VerdictDue {
			logger.Debug("Rule not due", "rule_id", rule.ID, "reason", verdict.String())
			continue
		}
		due = append(due, rule)
	}
	summary.Due = len(due)

	if len(due) == 0 {
		logger.Info("No due content found", "evaluated", summary.Evaluated)
		metrics.RecordCycle(0, time.Since(start))
		return summary, nil
	}
	logger.Info("Found due content", "count", len(due))

	// A deadline on ctx does not stop the loop; only cancellation does.
	for i, rule := range due {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Warn("Cycle cancelled before all due rules were processed", "remaining", len(due)-i)
			break
		}
		switch c.fire(ctx, rule, false) {
		case models.RuleRunStatusCompleted:
			summary.Completed++
		case models.RuleRunStatusSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	metrics.RecordCycle(summary.Due, time.Since(start))
	logger.Info(
		"Recurring cycle finished",
		"due", summary.Due,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"malformed", summary.Malformed,
	)
	return summary, nil
}

// RunOne processes a single rule immediately, ignoring its schedule. A manual
// run does not mark the rule fired, so the day's scheduled run still happens.
// The returned status is one of the models.RuleRunStatus values.
func (c *Cycle) RunOne(ctx context.Context, ruleID string) (string, error) {
	rule, err := c.cfg.Store.Find(ctx, ruleID)
	if err != nil {
		return "", err
	}
	return c.fire(ctx, *rule, true), nil
}

// fire processes one rule under its lock and records the outcome. It never
// returns an error; the outcome status says what happened.
func (c *Cycle) fire(parent context.Context, rule models.RecurringRule, manual bool) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.RuleTimeout)
	defer cancel()

	logger := c.cfg.Logger.With("rule_id", rule.ID, "organization_id", rule.OrganizationID, "rule_name", rule.Name)
	outcome := Outcome{
		RunID:          uuid.New().String(),
		RuleID:         rule.ID,
		OrganizationID: rule.OrganizationID,
		StartedAt:      c.now(),
	}

	if c.cfg.Locker != nil {
		release, ok, err := c.cfg.Locker.Acquire(ctx, "recurring:rule:"+rule.ID, c.cfg.LockTTL)
		if err != nil {
			logger.Error("Failed to acquire rule lock", "error", err)
			outcome.Status = models.RuleRunStatusFailed
			outcome.Step = StepPrecondition
			outcome.ErrorKind = KindTransient
			outcome.Error = err.Error()
			return c.finish(ctx, logger, outcome)
		}
		if !ok {
			logger.Info("Rule is already being processed, skipping")
			outcome.Status = models.RuleRunStatusSkipped
			outcome.Step = StepPrecondition
			outcome.Error = "rule already in flight"
			return c.finish(ctx, logger, outcome)
		}
		defer release()
	}

	// Another cycle may have fired the rule since this one listed it.
	if !manual {
		if fresh, err := c.cfg.Store.Find(ctx, rule.ID); err == nil {
			if !fresh.Active || fresh.LastRunAt != nil && !fresh.LastRunAt.In(c.cfg.Location).Before(StartOfDay(c.now())) {
				logger.Info("Rule no longer due, skipping")
				outcome.Status = models.RuleRunStatusSkipped
				outcome.Step = StepPrecondition
				outcome.Error = "rule no longer due"
				return c.finish(ctx, logger, outcome)
			}
			rule = *fresh
		}
	}

	logger.Info("Processing recurring rule")
	result, err := c.cfg.Processor.Process(ctx, rule)
	switch {
	case errors.Is(err, ErrSkipped):
		outcome.Status = models.RuleRunStatusSkipped
		outcome.Step = StepPrecondition
		outcome.Error = err.Error()
	case err != nil:
		outcome.Status = models.RuleRunStatusFailed
		outcome.Step = StepOf(err)
		outcome.ErrorKind = KindOf(err)
		outcome.Error = err.Error()
		logger.Error("Error processing recurring rule", "step", outcome.Step, "kind", outcome.ErrorKind, "error", err)
	default:
		outcome.Status = models.RuleRunStatusCompleted
		outcome.Step = StepPublish
		outcome.PostGroup = result.PostGroup
		if !manual {
			if err := c.cfg.Store.MarkFired(ctx, rule.ID, c.now()); err != nil {
				// The post exists; the rule may fire again within today's window.
				logger.Error("Failed to update last run time", "error", err)
				outcome.Error = err.Error()
			}
		}
		logger.Info("Successfully processed recurring rule", "post_group", result.PostGroup)
	}

	return c.finish(ctx, logger, outcome)
}

func (c *Cycle) finish(ctx context.Context, logger *slog.Logger, outcome Outcome) string {
	outcome.CompletedAt = c.now()
	metrics.RecordOutcome(outcome.Status, outcome.ErrorKind)
	if c.cfg.Recorder != nil {
		if err := c.cfg.Recorder.RecordOutcome(context.WithoutCancel(ctx), outcome); err != nil {
			logger.Warn("Failed to record rule outcome", "run_id", outcome.RunID, "error", err)
		}
	}
	return outcome.Status
}
