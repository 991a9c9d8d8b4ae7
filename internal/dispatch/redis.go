package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes events on a Redis pub/sub channel.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	now     func() time.Time
}

var _ Notifier = (*RedisNotifier)(nil)

// NewRedisNotifier connects using a redis:// url and verifies it with PING.
func NewRedisNotifier(ctx context.Context, url, channel string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisNotifier{rdb: rdb, channel: channel, now: time.Now}, nil
}

// Notify publishes one envelope.
func (r *RedisNotifier) Notify(ctx context.Context, name string, payload any) error {
	b, err := encodeEnvelope(name, payload, r.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := r.rdb.Publish(ctx, r.channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", name, err)
	}
	return nil
}

// Close closes the client.
func (r *RedisNotifier) Close() error {
	return r.rdb.Close()
}
