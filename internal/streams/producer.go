package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jimdaga/reelsip/internal/recurring"
	"github.com/redis/go-redis/v9"
)

// Publisher publishes rule outcomes to Redis Streams
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a new Publisher instance
func NewPublisher(redisURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return NewPublisherWithClient(redis.NewClient(opts)), nil
}

// NewPublisherWithClient wraps an existing Redis client.
func NewPublisherWithClient(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// PublishOutcome publishes a rule outcome to the stream
func (p *Publisher) PublishOutcome(ctx context.Context, outcome RuleOutcome) (string, error) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return "", fmt.Errorf("failed to marshal outcome: %w", err)
	}

	result := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamRuleOutcomes,
		MaxLen: 10000,
		Approx: true,
		ID:     "*", // auto-generate ID
		Values: map[string]interface{}{
			"payload":        string(payload),
			"published_at":   time.Now().Unix(),
			"schema_version": SchemaVersionV1,
		},
	})

	if result.Err() != nil {
		return "", fmt.Errorf("failed to publish to stream: %w", result.Err())
	}

	return result.Val(), nil
}

// RecordOutcome publishes a pipeline outcome. It satisfies recurring.OutcomeRecorder.
func (p *Publisher) RecordOutcome(ctx context.Context, o recurring.Outcome) error {
	_, err := p.PublishOutcome(ctx, RuleOutcome{
		RunID:          o.RunID,
		RuleID:         o.RuleID,
		OrganizationID: o.OrganizationID,
		Status:         o.Status,
		Step:           o.Step,
		ErrorKind:      o.ErrorKind,
		Error:          o.Error,
		PostGroup:      o.PostGroup,
		StartedAt:      o.StartedAt,
		CompletedAt:    o.CompletedAt,
	})
	return err
}

// Close closes the Redis client connection
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
