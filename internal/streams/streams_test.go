package streams

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jimdaga/reelsip/internal/database/dbtest"
	"github.com/jimdaga/reelsip/internal/models"
	"github.com/jimdaga/reelsip/internal/recurring"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func pendingEntries(t *testing.T, rdb *redis.Client) []redis.XPendingExt {
	t.Helper()
	entries, err := rdb.XPendingExt(context.Background(), &redis.XPendingExtArgs{
		Stream: StreamRuleOutcomes,
		Group:  GroupRunHistory,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	require.NoError(t, err)
	return entries
}

func TestPublishAndConsume_RecordsRuleRuns(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	db := dbtest.New(t)

	consumer, err := NewOutcomeConsumerWithClient(ctx, rdb, "test-consumer", -1)
	require.NoError(t, err)

	// Creating the group twice is fine.
	_, err = NewOutcomeConsumerWithClient(ctx, rdb, "test-consumer", -1)
	require.NoError(t, err)

	publisher := NewPublisherWithClient(rdb)
	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, publisher.RecordOutcome(ctx, recurring.Outcome{
		RunID: "run-1", RuleID: "rule-1", OrganizationID: "org-1",
		Status: models.RuleRunStatusCompleted, Step: recurring.StepPublish, PostGroup: "group-1",
		StartedAt: started, CompletedAt: started.Add(3 * time.Minute),
	}))
	require.NoError(t, publisher.RecordOutcome(ctx, recurring.Outcome{
		RunID: "run-2", RuleID: "rule-2", OrganizationID: "org-1",
		Status: models.RuleRunStatusFailed, Step: recurring.StepVideo, ErrorKind: recurring.KindProvider, Error: "boom",
		StartedAt: started, CompletedAt: started.Add(time.Minute),
	}))

	acked, err := consumer.ReadBatch(ctx, HandleRuleOutcome(db))
	require.NoError(t, err)
	assert.Equal(t, 2, acked)

	var runs []models.RuleRun
	require.NoError(t, db.Order("run_id").Find(&runs).Error)
	require.Len(t, runs, 2)
	assert.Equal(t, "group-1", runs[0].PostGroup)
	assert.Equal(t, models.RuleRunStatusFailed, runs[1].Status)
	assert.Equal(t, recurring.KindProvider, runs[1].ErrorKind)
	assert.Equal(t, "boom", runs[1].ErrorMessage)

	acked, err = consumer.ReadBatch(ctx, HandleRuleOutcome(db))
	require.NoError(t, err)
	assert.Zero(t, acked)
}

func TestReclaimPending_RetriesFailedOutcome(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	db := dbtest.New(t)

	consumer, err := NewOutcomeConsumerWithClient(ctx, rdb, "c", -1)
	require.NoError(t, err)
	_, err = NewPublisherWithClient(rdb).PublishOutcome(ctx, RuleOutcome{
		RunID: "run-1", RuleID: "rule-1", OrganizationID: "org-1", Status: models.RuleRunStatusCompleted,
	})
	require.NoError(t, err)

	calls := 0
	store := HandleRuleOutcome(db)
	handler := func(outcome RuleOutcome) error {
		calls++
		if calls == 1 {
			return errors.New("database unavailable")
		}
		return store(outcome)
	}

	acked, err := consumer.ReadBatch(ctx, handler)
	require.NoError(t, err)
	assert.Zero(t, acked)

	assert.Len(t, pendingEntries(t, rdb), 1)

	// New reads never return the failed entry.
	acked, err = consumer.ReadBatch(ctx, handler)
	require.NoError(t, err)
	assert.Zero(t, acked)

	acked, err = consumer.ReclaimPending(ctx, handler, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)
	assert.Equal(t, 2, calls)

	var runs []models.RuleRun
	require.NoError(t, db.Find(&runs).Error)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)

	assert.Empty(t, pendingEntries(t, rdb))
}

func TestReclaimPending_ClaimsFromOtherConsumers(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	db := dbtest.New(t)

	gone, err := NewOutcomeConsumerWithClient(ctx, rdb, "gone", -1)
	require.NoError(t, err)
	_, err = NewPublisherWithClient(rdb).PublishOutcome(ctx, RuleOutcome{RunID: "run-1", Status: models.RuleRunStatusSkipped})
	require.NoError(t, err)

	_, err = gone.ReadBatch(ctx, func(RuleOutcome) error { return errors.New("crashed") })
	require.NoError(t, err)

	current, err := NewOutcomeConsumerWithClient(ctx, rdb, "current", -1)
	require.NoError(t, err)
	acked, err := current.ReclaimPending(ctx, HandleRuleOutcome(db), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)

	var count int64
	require.NoError(t, db.Model(&models.RuleRun{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestReadBatch_DropsInvalidOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{name: "missing payload", values: map[string]interface{}{"other": "x"}},
		{name: "malformed json", values: map[string]interface{}{"payload": "{not json"}},
		{name: "unknown status", values: map[string]interface{}{"payload": `{"run_id":"r","status":"exploded"}`}},
		{name: "missing run id", values: map[string]interface{}{"payload": `{"status":"completed"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			rdb := newRedis(t)
			db := dbtest.New(t)

			consumer, err := NewOutcomeConsumerWithClient(ctx, rdb, "c", -1)
			require.NoError(t, err)
			require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{Stream: StreamRuleOutcomes, Values: tt.values}).Err())

			acked, err := consumer.ReadBatch(ctx, HandleRuleOutcome(db))
			require.NoError(t, err)
			assert.Equal(t, 1, acked)

			assert.Empty(t, pendingEntries(t, rdb))

			var count int64
			require.NoError(t, db.Model(&models.RuleRun{}).Count(&count).Error)
			assert.Zero(t, count)
		})
	}
}

func TestHandleRuleOutcome_Redelivery(t *testing.T) {
	db := dbtest.New(t)
	handle := HandleRuleOutcome(db)

	outcome := RuleOutcome{RunID: "run-1", RuleID: "rule-1", OrganizationID: "org-1", Status: models.RuleRunStatusFailed, Error: "first"}
	require.NoError(t, handle(outcome))
	outcome.Error = "second"
	require.NoError(t, handle(outcome))

	var runs []models.RuleRun
	require.NoError(t, db.Find(&runs).Error)
	require.Len(t, runs, 1)
	assert.Equal(t, "second", runs[0].ErrorMessage)

	assert.ErrorIs(t, handle(RuleOutcome{Status: models.RuleRunStatusCompleted}), ErrInvalidOutcome)
	assert.ErrorIs(t, handle(RuleOutcome{RunID: "run-2", Status: "exploded"}), ErrInvalidOutcome)
}
