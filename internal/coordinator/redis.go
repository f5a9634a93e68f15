package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultConnectionTimeout bounds Ping and the initial connectivity check.
const defaultConnectionTimeout = 2 * time.Second

// RedisConfig configures a connection to the coordinator store.
type RedisConfig struct {
	Addr     string
	Password string `json:"-"`
	DB       int
}

// RedisStore implements Store over go-redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials Redis and verifies connectivity before returning.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to coordinator store: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// SAdd adds member to the set at key.
func (s *RedisStore) SAdd(ctx context.Context, key, member string) (bool, error) {
	n, err := s.client.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("sadd %s: %w", key, err)
	}
	return n > 0, nil
}

// SIsMember reports whether member is present in the set at key.
func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", key, err)
	}
	return ok, nil
}

// SMembers returns all members of the set at key.
func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}

// LPushBack appends value to the end of the list at key.
func (s *RedisStore) LPushBack(ctx context.Context, key, value string) error {
	if err := s.client.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// LRemoveFirstMatch removes the first occurrence of value from the list.
func (s *RedisStore) LRemoveFirstMatch(ctx context.Context, key, value string) error {
	if err := s.client.LRem(ctx, key, 1, value).Err(); err != nil {
		return fmt.Errorf("lrem %s: %w", key, err)
	}
	return nil
}

// LRange returns list elements at key from start to stop, inclusive.
func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return vals, nil
}

// LDelete removes the entire list at key.
func (s *RedisStore) LDelete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Ping verifies the store is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client exposes the underlying go-redis client for collaborators that need
// primitives beyond the Store interface, such as NewRunLock.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}
