package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// OutcomeConsumer consumes rule outcomes from Redis Streams
type OutcomeConsumer struct {
	rdb          *redis.Client
	groupName    string
	consumerName string
	block        time.Duration
}

// NewOutcomeConsumer creates a new OutcomeConsumer instance
func NewOutcomeConsumer(redisURL, consumerName string) (*OutcomeConsumer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	// Read timeout must exceed the XReadGroup Block duration (5s)
	// to avoid spurious i/o timeout errors on idle streams.
	opts.ReadTimeout = 10 * time.Second

	return NewOutcomeConsumerWithClient(context.Background(), redis.NewClient(opts), consumerName, 5*time.Second)
}

// NewOutcomeConsumerWithClient creates the consumer group on an existing
// client. A negative block reads without blocking.
func NewOutcomeConsumerWithClient(ctx context.Context, rdb *redis.Client, consumerName string, block time.Duration) (*OutcomeConsumer, error) {
	// Start ID "0" means read from beginning if group is new
	err := rdb.XGroupCreateMkStream(ctx, StreamRuleOutcomes, GroupRunHistory, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &OutcomeConsumer{
		rdb:          rdb,
		groupName:    GroupRunHistory,
		consumerName: consumerName,
		block:        block,
	}, nil
}

// reclaimIdle is how long a pending entry must sit unacknowledged before
// ConsumeOutcomes claims it again.
const reclaimIdle = 30 * time.Second

// ConsumeOutcomes runs a blocking loop consuming outcomes from the stream.
// Pending entries are reclaimed on start and then once a minute.
func (c *OutcomeConsumer) ConsumeOutcomes(ctx context.Context, handler func(RuleOutcome) error) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	if _, err := c.ReclaimPending(ctx, handler, reclaimIdle); err != nil && ctx.Err() == nil {
		slog.Error("Failed to reclaim pending outcomes", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.ReclaimPending(ctx, handler, reclaimIdle); err != nil && ctx.Err() == nil {
				slog.Error("Failed to reclaim pending outcomes", "error", err)
			}
		default:
		}

		if _, err := c.ReadBatch(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("Failed to read from stream", "error", err)
			time.Sleep(time.Second)
		}
	}
}

// ReadBatch reads up to 10 new messages, hands each to handler and ACKs the
// ones handled successfully. It returns the number of ACKed messages.
func (c *OutcomeConsumer) ReadBatch(ctx context.Context, handler func(RuleOutcome) error) (int, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.groupName,
		Consumer: c.consumerName,
		Streams:  []string{StreamRuleOutcomes, ">"},
		Count:    10,
		Block:    c.block,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		// Blocking reads return a timeout when no messages arrive
		// within the Block duration; this is normal.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil
		}
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		acked += c.handleMessages(ctx, stream.Messages, handler)
	}
	return acked, nil
}

// ReclaimPending claims entries that have been pending for at least minIdle,
// from any consumer in the group, and handles them again. It returns the
// number of ACKed messages.
func (c *OutcomeConsumer) ReclaimPending(ctx context.Context, handler func(RuleOutcome) error, minIdle time.Duration) (int, error) {
	acked := 0
	start := "0-0"
	for {
		messages, next, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   StreamRuleOutcomes,
			Group:    c.groupName,
			Consumer: c.consumerName,
			MinIdle:  minIdle,
			Start:    start,
			Count:    10,
		}).Result()
		if errors.Is(err, redis.Nil) {
			return acked, nil
		}
		if err != nil {
			return acked, fmt.Errorf("failed to claim pending outcomes: %w", err)
		}

		acked += c.handleMessages(ctx, messages, handler)
		if next == "0-0" || len(messages) == 0 {
			return acked, nil
		}
		start = next
	}
}

func (c *OutcomeConsumer) handleMessages(ctx context.Context, messages []redis.XMessage, handler func(RuleOutcome) error) int {
	acked := 0
	for _, message := range messages {
		if !c.handleMessage(message, handler) {
			continue
		}
		if err := c.rdb.XAck(ctx, StreamRuleOutcomes, c.groupName, message.ID).Err(); err != nil {
			slog.Error("Failed to ACK message", "error", err, "message_id", message.ID)
			continue
		}
		acked++
	}
	return acked
}

// handleMessage reports whether the message should be ACKed. Payloads that
// can never be stored are dropped; other handler errors leave the message
// pending for ReclaimPending.
func (c *OutcomeConsumer) handleMessage(message redis.XMessage, handler func(RuleOutcome) error) bool {
	payloadStr, ok := message.Values["payload"].(string)
	if !ok {
		slog.Error("Dropping message without payload", "message_id", message.ID)
		return true
	}

	var outcome RuleOutcome
	if err := json.Unmarshal([]byte(payloadStr), &outcome); err != nil {
		slog.Error("Dropping unparsable outcome", "error", err, "message_id", message.ID)
		return true
	}

	if err := handler(outcome); err != nil {
		if errors.Is(err, ErrInvalidOutcome) {
			slog.Error("Dropping invalid outcome", "error", err, "message_id", message.ID)
			return true
		}
		slog.Error("Handler failed", "error", err, "run_id", outcome.RunID)
		return false
	}
	return true
}

// Close closes the Redis client connection
func (c *OutcomeConsumer) Close() error {
	return c.rdb.Close()
}

// StartOutcomeConsumer starts the outcome consumer in a background goroutine
// and returns a stop function
func StartOutcomeConsumer(redisURL string, db *gorm.DB) (stop func(), err error) {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "run-history-1"
	}
	consumer, err := NewOutcomeConsumer(redisURL, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create outcome consumer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := consumer.ConsumeOutcomes(ctx, HandleRuleOutcome(db)); err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("Outcome consumer stopped with error", "error", err)
			}
		}
	}()

	slog.Info("Outcome consumer started", "stream", StreamRuleOutcomes)

	return func() {
		cancel()
		consumer.Close()
	}, nil
}
