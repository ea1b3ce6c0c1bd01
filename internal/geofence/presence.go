package geofence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
)

// MemoryPresence - ограниченный по размеру LRU, старые пары вытесняются
type MemoryPresence struct {
	mtx   sync.Mutex
	cache *lru.Cache
}

func NewMemoryPresence(size int) (*MemoryPresence, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("создание LRU: %w", err)
	}
	return &MemoryPresence{cache: cache}, nil
}

func (m *MemoryPresence) Swap(_ context.Context, key string, inside bool) (bool, bool, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	value, known := m.cache.Get(key)
	m.cache.Add(key, inside)
	if !known {
		return false, false, nil
	}
	return value.(bool), true, nil
}

// RedisPresence - общее состояние для нескольких экземпляров сервиса
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{client: client, ttl: ttl}
}

func (r *RedisPresence) Swap(ctx context.Context, key string, inside bool) (bool, bool, error) {
	value := "0"
	if inside {
		value = "1"
	}

	pipe := r.client.TxPipeline()
	previous := pipe.GetSet(ctx, key, value)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, false, err
	}

	prev, err := previous.Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return prev == "1", true, nil
}
