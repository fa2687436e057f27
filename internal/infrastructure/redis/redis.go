package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultTypingTTL = 30 * time.Second

type RedisClient struct {
	client    redis.UniversalClient
	typingTTL time.Duration
}

func NewRedisClient(host, port, password string, typingTTL time.Duration) *RedisClient {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	return New(client, typingTTL)
}

// New wraps an existing client.
func New(client redis.UniversalClient, typingTTL time.Duration) *RedisClient {
	if typingTTL <= 0 {
		typingTTL = defaultTypingTTL
	}
	return &RedisClient{client: client, typingTTL: typingTTL}
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
