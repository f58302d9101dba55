package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskRecurringCycle = "recurring:cycle"
	TaskRunRule        = "recurring:run"
)

// Enqueuer queues recurring content tasks.
type Enqueuer struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewEnqueuer creates an Enqueuer. runTimeout bounds a single rule run.
func NewEnqueuer(redisURL string, runTimeout time.Duration) (*Enqueuer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Enqueuer{client: asynq.NewClient(opt), timeout: runTimeout}, nil
}

// Close closes the Asynq client connection gracefully.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// NewRunRuleTask builds a task that processes one rule immediately.
func NewRunRuleTask(ruleID string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(map[string]string{
		"rule_id": ruleID,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskRunRule,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Retention(24*time.Hour),
		asynq.Unique(timeout), // one queued run per rule
	), nil
}

// EnqueueRunRule enqueues an immediate run of the given rule. A run that is
// already queued counts as success.
func (e *Enqueuer) EnqueueRunRule(ruleID string) error {
	task, err := NewRunRuleTask(ruleID, e.timeout)
	if err != nil {
		return err
	}

	_, err = e.client.Enqueue(task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}
