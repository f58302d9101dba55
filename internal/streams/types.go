package streams

import "time"

// Stream name constants
const (
	StreamRuleOutcomes = "recurring:outcomes"
)

// Consumer group constants
const (
	GroupRunHistory = "run-history"
)

// Schema version constant
const (
	SchemaVersionV1 = "v1"
)

// RuleOutcome is the message published after each attempt to fire a rule.
type RuleOutcome struct {
	RunID          string    `json:"run_id"`
	RuleID         string    `json:"rule_id"`
	OrganizationID string    `json:"organization_id"`
	Status         string    `json:"status"` // completed/failed/skipped
	Step           string    `json:"step"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	Error          string    `json:"error,omitempty"`
	PostGroup      string    `json:"post_group,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}
