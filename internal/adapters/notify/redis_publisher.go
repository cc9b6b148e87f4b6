package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"hospital-queue/internal/core/services"
)

// ChannelPrefix namespaces every published queue event
const ChannelPrefix = "hospital-queue:"

// RedisPublisher fans queue events out over Redis pub/sub so other
// processes (displays, bots) can follow a department or patient.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher over an existing client
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Name implements services.Channel
func (p *RedisPublisher) Name() string { return "redis" }

// Topic returns the pub/sub channel for a recipient reference
func Topic(recipientRef string) string {
	return ChannelPrefix + recipientRef
}

// Send implements services.Channel
func (p *RedisPublisher) Send(ctx context.Context, recipientRef string, event services.SSEEvent) error {
	if err := p.client.Publish(ctx, Topic(recipientRef), event.JSON()).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
