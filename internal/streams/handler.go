package streams

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jimdaga/reelsip/internal/models"
	"gorm.io/gorm"
)

// ErrInvalidOutcome marks outcomes that can never be stored. The consumer
// acknowledges them instead of leaving them pending.
var ErrInvalidOutcome = errors.New("invalid outcome")

// HandleRuleOutcome returns a handler that stores each outcome as a RuleRun.
// Redelivered messages update the existing record.
func HandleRuleOutcome(db *gorm.DB) func(RuleOutcome) error {
	return func(outcome RuleOutcome) error {
		switch outcome.Status {
		case models.RuleRunStatusCompleted, models.RuleRunStatusFailed, models.RuleRunStatusSkipped:
		default:
			return fmt.Errorf("%w: unknown status %q", ErrInvalidOutcome, outcome.Status)
		}
		if outcome.RunID == "" {
			return fmt.Errorf("%w: missing run_id", ErrInvalidOutcome)
		}

		startedAt, completedAt := outcome.StartedAt, outcome.CompletedAt
		run := models.RuleRun{RunID: outcome.RunID}
		err := db.Where(models.RuleRun{RunID: outcome.RunID}).
			Assign(models.RuleRun{
				RuleID:         outcome.RuleID,
				OrganizationID: outcome.OrganizationID,
				Status:         outcome.Status,
				Step:           outcome.Step,
				ErrorKind:      outcome.ErrorKind,
				ErrorMessage:   outcome.Error,
				PostGroup:      outcome.PostGroup,
				StartedAt:      &startedAt,
				CompletedAt:    &completedAt,
			}).
			FirstOrCreate(&run).Error
		if err != nil {
			return fmt.Errorf("failed to store rule run: %w", err)
		}

		if outcome.Status == models.RuleRunStatusFailed {
			slog.Warn("Rule run failed",
				"run_id", outcome.RunID,
				"rule_id", outcome.RuleID,
				"step", outcome.Step,
				"kind", outcome.ErrorKind,
				"error", outcome.Error,
			)
		} else {
			slog.Debug("Rule run recorded", "run_id", outcome.RunID, "status", outcome.Status)
		}
		return nil
	}
}
