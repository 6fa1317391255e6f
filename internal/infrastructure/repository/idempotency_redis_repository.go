package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/go-redis/redis/v8"
)

var (
	_ interfaces.IdempotencyRepository = (*RedisIdempotencyRepository)(nil)
	_ interfaces.IdempotencyRepository = (*MemoryIdempotencyRepository)(nil)
)

type RedisIdempotencyRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisIdempotencyRepository(client redis.UniversalClient) *RedisIdempotencyRepository {
	return &RedisIdempotencyRepository{
		client: client,
		prefix: "idempotency_key:",
	}
}

func (r *RedisIdempotencyRepository) Save(ctx context.Context, record *interfaces.IdempotencyRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	if err := r.client.Set(ctx, r.getRedisKey(record.Key), string(data), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency record in Redis: %w", err)
	}
	return nil
}

func (r *RedisIdempotencyRepository) Get(ctx context.Context, key string) (*interfaces.IdempotencyRecord, error) {
	val, err := r.client.Get(ctx, r.getRedisKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get idempotency record from Redis: %w", err)
	}

	var record interfaces.IdempotencyRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	return &record, nil
}

func (r *RedisIdempotencyRepository) getRedisKey(key string) string {
	return r.prefix + key
}

// MemoryIdempotencyRepository keeps records in process for the memory driver
type MemoryIdempotencyRepository struct {
	mu      sync.RWMutex
	records map[string]memoryIdempotencyEntry
}

type memoryIdempotencyEntry struct {
	record    interfaces.IdempotencyRecord
	expiresAt time.Time
}

func NewMemoryIdempotencyRepository() *MemoryIdempotencyRepository {
	return &MemoryIdempotencyRepository{records: make(map[string]memoryIdempotencyEntry)}
}

func (r *MemoryIdempotencyRepository) Save(ctx context.Context, record *interfaces.IdempotencyRecord, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Key] = memoryIdempotencyEntry{record: *record, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (r *MemoryIdempotencyRepository) Get(ctx context.Context, key string) (*interfaces.IdempotencyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.records[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	record := entry.record
	return &record, nil
}
