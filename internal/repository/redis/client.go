package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// InitRedis connects and pings. A failed ping returns the error so the caller
// can decide to run without a cache.
func InitRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// RedisCache acts as a wrapper around redis.Client for the session store cache.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Get returns "" with a nil error on a miss.
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

const presenceKey = "presence:online"

// PresenceMirror publishes the presence projection as a hash of user id to nickname.
type PresenceMirror struct {
	client *redis.Client
}

func NewPresenceMirror(client *redis.Client) *PresenceMirror {
	return &PresenceMirror{client: client}
}

func (m *PresenceMirror) Reset(ctx context.Context) error {
	return m.client.Del(ctx, presenceKey).Err()
}

func (m *PresenceMirror) SetOnline(ctx context.Context, userID int64, nickname string) error {
	return m.client.HSet(ctx, presenceKey, strconv.FormatInt(userID, 10), nickname).Err()
}

func (m *PresenceMirror) SetOffline(ctx context.Context, userID int64) error {
	return m.client.HDel(ctx, presenceKey, strconv.FormatInt(userID, 10)).Err()
}
