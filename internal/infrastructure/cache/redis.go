package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lab-registration/internal/config"
	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// NewRedisClient builds the client shared by the cache, the queue and the
// idempotency store
func NewRedisClient(cfg *config.CacheConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		PoolSize:    cfg.PoolSize,
		PoolTimeout: time.Duration(cfg.PoolTimeout) * time.Second,
		IdleTimeout: time.Duration(cfg.IdleTimeout) * time.Second,
	})
}

type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{
		client: client,
	}
}

func slotSummaryKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:summary:%s", sessionID.String())
}

func (r *RedisCache) GetSlotSummary(ctx context.Context, sessionID uuid.UUID) (*domain.SlotSummary, error) {
	val, err := r.client.Get(ctx, slotSummaryKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get slot summary from cache: %w", err)
	}

	var summary domain.SlotSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slot summary: %w", err)
	}

	return &summary, nil
}

func (r *RedisCache) SetSlotSummary(ctx context.Context, sessionID uuid.UUID, summary *domain.SlotSummary, ttl time.Duration) error {
	jsonData, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal slot summary: %w", err)
	}

	if err := r.client.Set(ctx, slotSummaryKey(sessionID), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set slot summary: %w", err)
	}

	return nil
}

func (r *RedisCache) InvalidateSession(ctx context.Context, sessionID uuid.UUID) error {
	if err := r.client.Del(ctx, slotSummaryKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete slot summary for session %s: %w", sessionID, err)
	}

	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ interfaces.CacheService = (*RedisCache)(nil)
