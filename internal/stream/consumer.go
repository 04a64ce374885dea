package stream

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/pkg/config"
)

// HandlerFunc receives a decoded event. A nil return acknowledges the
// message; an error leaves it pending for redelivery.
type HandlerFunc func(ctx context.Context, event Event) error

// Consumer reads enrollment events from the stream as part of a consumer
// group and hands them to the registered handler. Malformed payloads are
// acknowledged and dropped so a poison message cannot wedge the group.
type Consumer struct {
	client  *redis.Client
	cfg     config.StreamConfig
	handler HandlerFunc
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewConsumer constructs a consumer. An empty consumer name falls back
// to the hostname so parallel instances stay distinguishable.
func NewConsumer(client *redis.Client, cfg config.StreamConfig, handler HandlerFunc, logger *zap.Logger) *Consumer {
	if cfg.Consumer == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "enroll-consumer"
		}
		cfg.Consumer = host
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Start ensures the consumer group exists, reclaims messages a previous
// instance left pending, and launches the read loop.
func (c *Consumer) Start(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Key, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	c.reclaim(ctx)

	c.wg.Add(1)
	go c.loop(ctx)
	c.logger.Info("stream consumer started",
		zap.String("stream", c.cfg.Key),
		zap.String("group", c.cfg.Group),
		zap.String("consumer", c.cfg.Consumer))
	return nil
}

// Wait blocks until the read loop has exited.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) loop(ctx context.Context) {
	defer c.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Key, ">"},
			Count:    c.cfg.ReadCount,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("stream read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

// reclaim takes over messages other consumers read but never
// acknowledged, e.g. after a process died mid-enqueue.
func (c *Consumer) reclaim(ctx context.Context) {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.Key,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  time.Minute,
			Start:    start,
			Count:    100,
		}).Result()
		if err != nil {
			c.logger.Warn("reclaim pending messages failed", zap.Error(err))
			return
		}
		for _, msg := range msgs {
			c.handle(ctx, msg)
		}
		if len(msgs) == 0 || next == "0-0" {
			return
		}
		start = next
	}
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	raw, _ := msg.Values[payloadField].(string)
	event, err := Decode(raw)
	if err != nil {
		c.logger.Error("discarding malformed enrollment event",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		c.ack(ctx, msg.ID)
		return
	}

	if err := c.handler(ctx, event); err != nil {
		c.logger.Warn("event handler failed; message left pending",
			zap.String("message_id", msg.ID),
			zap.String("record_id", event.RecordID),
			zap.Error(err))
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.cfg.Key, c.cfg.Group, id).Err(); err != nil {
		c.logger.Warn("ack failed", zap.String("message_id", id), zap.Error(err))
	}
}
