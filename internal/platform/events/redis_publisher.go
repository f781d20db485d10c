package events

import (
	"context"
	"fmt"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/redis/go-redis/v9"
)

// RedisPublisher appends events to a Redis stream. Each entry carries the JSON
// encoded event under the "event" field and its type under "type".
type RedisPublisher struct {
	client *redis.Client
	stream string
}

var _ portssvc.EventPublisher = (*RedisPublisher)(nil)

func NewRedisPublisher(client *redis.Client, stream string) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream}
}

func (p *RedisPublisher) Publish(ctx context.Context, event domain.Event) error {
	body, err := encode(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":  event.Type,
			"event": body,
		},
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}
	return nil
}
