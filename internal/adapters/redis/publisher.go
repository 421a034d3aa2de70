// Package redis provides the Redis-based notification sink: every hub event
// is published on a Redis channel so other processes can mirror the bench's
// event stream.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/compudrive/drivebench/internal/notify"
)

// DefaultChannel is the Redis pub/sub channel events go out on.
const DefaultChannel = "drivebench:events"

// Publisher forwards notify events to Redis PUBLISH. It implements
// notify.Sink; the hub logs and swallows publish errors, so a Redis outage
// never stalls the test engine.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// PublisherOptions groups dependencies for NewPublisher.
type PublisherOptions struct {
	Client  redis.UniversalClient // Required: Redis client
	Channel string                // Optional: pub/sub channel, DefaultChannel when empty
	Logger  *slog.Logger          // Optional: structured logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:  opts.Client,
		channel: channel,
		logger:  logger.With("component", "redis_publisher"),
	}, nil
}

// Publish implements notify.Sink. The event also goes out on a per-kind
// channel ("drivebench:events:test_progress") so consumers can subscribe
// selectively.
func (p *Publisher) Publish(ctx context.Context, ev notify.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if pubErr := p.client.Publish(ctx, p.channel, data).Err(); pubErr != nil {
		return fmt.Errorf("redis publish: %w", pubErr)
	}
	if pubErr := p.client.Publish(ctx, p.channel+":"+string(ev.Kind), data).Err(); pubErr != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Kind, pubErr)
	}
	return nil
}
