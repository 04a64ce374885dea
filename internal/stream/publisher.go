package stream

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/pkg/config"
)

// Publisher appends enrollment events to the Redis stream that feeds the
// worker pool.
type Publisher struct {
	client *redis.Client
	key    string
	maxLen int64
	logger *zap.Logger
}

// NewPublisher constructs a publisher for the configured stream.
func NewPublisher(client *redis.Client, cfg config.StreamConfig, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		key:    cfg.Key,
		maxLen: cfg.MaxLen,
		logger: logger,
	}
}

// Publish appends one event. The stream is trimmed approximately to the
// configured length so it cannot grow without bound.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	raw, err := event.Encode()
	if err != nil {
		return err
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.key,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{payloadField: raw},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish enrollment event: %w", err)
	}

	p.logger.Debug("enrollment event published",
		zap.String("stream", p.key),
		zap.String("message_id", id),
		zap.String("record_id", event.RecordID))
	return nil
}
