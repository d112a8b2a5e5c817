package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"matrix/internal/domain"
)

// RedisClient is the part of the go-redis client used for pub/sub.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// envelope is the JSON payload sent on the channel.
type envelope struct {
	domain.Notification
	Message string `json:"message"`
}

// RedisPublisher sends each notification as JSON on one pub/sub channel.
type RedisPublisher struct {
	client  RedisClient
	channel string
}

func NewRedisPublisher(client RedisClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, notifications []domain.Notification) error {
	for _, n := range notifications {
		data, err := json.Marshal(envelope{Notification: n, Message: Message(n)})
		if err != nil {
			return fmt.Errorf("encode notification %s: %w", n.ID, err)
		}
		if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
			return fmt.Errorf("publish notification %s: %w", n.ID, err)
		}
	}
	return nil
}
