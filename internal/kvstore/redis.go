package kvstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// keyPrefix namespaces state blobs in a shared Redis.
const keyPrefix = "adtrack:state:"

// RedisStore persists named blobs in Redis.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return &RedisStore{Client: client}, nil
}

// Load reads the value stored under name. ErrNotFound when absent.
func (s *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	val, err := s.Client.Get(ctx, keyPrefix+name).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", name, err)
	}
	return val, nil
}

// Save writes the value under name. Redis SET is atomic per key.
func (s *RedisStore) Save(ctx context.Context, name string, value []byte) error {
	if err := s.Client.Set(ctx, keyPrefix+name, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", name, err)
	}
	return nil
}

// Close shuts down the Redis client.
func (s *RedisStore) Close() {
	if s != nil && s.Client != nil {
		if err := s.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
