package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/reelsip/internal/models"
	"github.com/jimdaga/reelsip/internal/recurring"
	"github.com/jimdaga/reelsip/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	runErr    error
	runOneErr error
	ran       int
	ruleIDs   []string
}

func (f *fakeRunner) Run(ctx context.Context) (recurring.Summary, error) {
	f.ran++
	return recurring.Summary{Evaluated: 3, Due: 1, Completed: 1}, f.runErr
}

func (f *fakeRunner) RunOne(ctx context.Context, ruleID string) (string, error) {
	f.ruleIDs = append(f.ruleIDs, ruleID)
	if f.runOneErr != nil {
		return "", f.runOneErr
	}
	return models.RuleRunStatusCompleted, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleRecurringCycle(t *testing.T) {
	tests := []struct {
		name    string
		runErr  error
		wantErr bool
	}{
		{name: "success", runErr: nil},
		{name: "overlapping tick is not an error", runErr: recurring.ErrCycleInProgress},
		{name: "list failure", runErr: errors.New("db down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{runErr: tt.runErr}
			err := handleRecurringCycle(discardLogger(), runner)(context.Background(), NewCycleTask(time.Minute))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, runner.ran)
		})
	}
}

func TestHandleRunRule(t *testing.T) {
	runner := &fakeRunner{}
	task, err := NewRunRuleTask("rule-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, handleRunRule(discardLogger(), runner)(context.Background(), task))
	assert.Equal(t, []string{"rule-1"}, runner.ruleIDs)
}

func TestHandleRunRule_InvalidPayloadSkipsRetry(t *testing.T) {
	runner := &fakeRunner{}
	handler := handleRunRule(discardLogger(), runner)

	for _, payload := range []string{"not json", `{"rule_id":""}`} {
		err := handler(context.Background(), asynq.NewTask(TaskRunRule, []byte(payload)))
		assert.ErrorIs(t, err, asynq.SkipRetry, payload)
	}
	assert.Empty(t, runner.ruleIDs)
}

func TestHandleRunRule_Errors(t *testing.T) {
	task, err := NewRunRuleTask("gone", time.Minute)
	require.NoError(t, err)

	err = handleRunRule(discardLogger(), &fakeRunner{runOneErr: rules.ErrNotFound})(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = handleRunRule(discardLogger(), &fakeRunner{runOneErr: errors.New("conn reset")})(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestNewRunRuleTask(t *testing.T) {
	task, err := NewRunRuleTask("abc", 20*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TaskRunRule, task.Type())

	var payload map[string]string
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "abc", payload["rule_id"])
}

func TestNewCycleTask(t *testing.T) {
	task := NewCycleTask(30 * time.Minute)
	assert.Equal(t, TaskRecurringCycle, task.Type())
	assert.Empty(t, task.Payload())
}

func TestNewServeMux_RoutesTasks(t *testing.T) {
	runner := &fakeRunner{}
	mux := NewServeMux(discardLogger(), runner)

	task, err := NewRunRuleTask("rule-9", time.Minute)
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	require.NoError(t, mux.ProcessTask(context.Background(), NewCycleTask(time.Minute)))

	assert.Equal(t, []string{"rule-9"}, runner.ruleIDs)
	assert.Equal(t, 1, runner.ran)
}
