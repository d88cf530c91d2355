package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// RedisStore implements SessionStore on a single Redis instance.
type RedisStore struct {
	C *redis.Client
}

// NewRedis connects to the Redis instance configured under the redis.*
// keys and pings it once so a bad address fails at startup instead of
// on the first upload.
func NewRedis() (*RedisStore, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis, %w", err)
	}

	return &RedisStore{C: c}, nil
}

func (s *RedisStore) GetString(ctx context.Context, key string) (string, error) {
	val, err := s.C.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyMissing
	}

	return val, err
}

func (s *RedisStore) SetString(ctx context.Context, key, val string, ttl time.Duration) error {
	return s.C.Set(ctx, key, val, ttl).Err()
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key, val string, ttl time.Duration) (bool, error) {
	return s.C.SetNX(ctx, key, val, ttl).Result()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.C.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	return s.C.Del(ctx, keys...).Err()
}

func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.C.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	// HGETALL returns an empty map for a missing key
	if len(fields) == 0 {
		return nil, ErrKeyMissing
	}

	return fields, nil
}

func (s *RedisStore) HashSetAll(ctx context.Context, key string, fields map[string]string) error {
	return s.C.HSet(ctx, key, fields).Err()
}

func (s *RedisStore) AddToSet(ctx context.Context, key, member string) error {
	return s.C.SAdd(ctx, key, member).Err()
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	return s.C.SMembers(ctx, key).Result()
}

func (s *RedisStore) SetCard(ctx context.Context, key string) (int64, error) {
	return s.C.SCard(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.C.Expire(ctx, key, ttl).Err()
}
