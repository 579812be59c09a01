package watermark

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces watermark keys in Redis
const keyPrefix = "ripandrun:seen:"

// RedisStore keeps seen Message-IDs as Redis keys with a TTL. Useful when
// more than one poller host shares a mailbox; the TTL bounds growth the way
// the file backend's retention cap does.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to Redis using the given URL
// (redis://host:port/db) and verifies the connection.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func (s *RedisStore) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, keyPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("redis EXISTS: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Record(ctx context.Context, messageID string) error {
	if err := s.rdb.Set(ctx, keyPrefix+messageID, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

var _ Store = (*RedisStore)(nil)
