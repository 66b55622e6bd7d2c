package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FrameCache mirrors the most recent frame per device so snapshot reads never
// touch the capture loop.
type FrameCache interface {
	Store(ctx context.Context, id string, frame []byte) error
	Latest(ctx context.Context, id string) ([]byte, error)
}

// RedisFrameCache keeps one key per device with a short TTL; a stale frame
// ages out on its own when the stream stops.
type RedisFrameCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFrameCache(client *redis.Client, ttl time.Duration) *RedisFrameCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisFrameCache{client: client, ttl: ttl}
}

func frameKey(id string) string { return "ovfleet:frame:" + id }

func (c *RedisFrameCache) Store(ctx context.Context, id string, frame []byte) error {
	return c.client.Set(ctx, frameKey(id), frame, c.ttl).Err()
}

func (c *RedisFrameCache) Latest(ctx context.Context, id string) ([]byte, error) {
	b, err := c.client.Get(ctx, frameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no cached frame for %s", id)
	}
	return b, err
}

// NoopFrameCache is used when Redis is not configured.
type NoopFrameCache struct{}

func (NoopFrameCache) Store(context.Context, string, []byte) error { return nil }
func (NoopFrameCache) Latest(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("frame cache disabled")
}
