package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	interfaces "lab-registration/internal/interfaces/infrastructure"
	"lab-registration/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const (
	NotificationQueueKey = "queue:notifications"
	DeadLetterQueueKey   = "queue:notifications:dead"
)

type RedisQueue struct {
	client redis.UniversalClient

	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex

	handler interfaces.EventHandler
}

// NewRedisQueue creates a Redis list backed queue on an existing client
func NewRedisQueue(client redis.UniversalClient, workers int) *RedisQueue {
	ctx, cancel := context.WithCancel(context.Background())

	if workers <= 0 {
		workers = 1
	}

	return &RedisQueue{
		client:  client,
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (rq *RedisQueue) SetHandler(handler interfaces.EventHandler) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.handler = handler
}

func (rq *RedisQueue) StartWorkers() {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.started {
		return
	}

	if rq.handler == nil {
		logger.Warn("Event handler not set, workers cannot process events")
		return
	}

	logger.Info("Starting %d Redis queue workers", rq.workers)

	for i := 0; i < rq.workers; i++ {
		rq.wg.Add(1)
		go rq.worker(i)
	}

	rq.started = true
}

func (rq *RedisQueue) StopWorkers() {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if !rq.started {
		return
	}

	logger.Info("Stopping Redis queue workers...")
	rq.cancel()
	rq.wg.Wait()
	rq.started = false
	logger.Info("Redis queue workers stopped")
}

// Enqueue pushes an event onto the notification list
func (rq *RedisQueue) Enqueue(ctx context.Context, event interfaces.NotificationEvent) error {
	return rq.push(ctx, NotificationQueueKey, event)
}

// Dequeue blocks for up to DefaultDequeueTimeout. A nil event means nothing arrived.
func (rq *RedisQueue) Dequeue(ctx context.Context) (*interfaces.NotificationEvent, error) {
	result, err := rq.client.BRPop(ctx, DefaultDequeueTimeout, NotificationQueueKey).Result()
	if err != nil {
		if err == redis.Nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue notification: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected Redis BRPOP result format")
	}

	var event interfaces.NotificationEvent
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}

	return &event, nil
}

func (rq *RedisQueue) Length(ctx context.Context) (int, error) {
	n, err := rq.client.LLen(ctx, NotificationQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return int(n), nil
}

func (rq *RedisQueue) deadLetter(ctx context.Context, event interfaces.NotificationEvent) error {
	return rq.push(ctx, DeadLetterQueueKey, event)
}

func (rq *RedisQueue) push(ctx context.Context, key string, event interfaces.NotificationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := rq.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to push notification to %s: %w", key, err)
	}

	logger.Debug("Enqueued %s for student %s on %s", event.Type, event.StudentID, key)
	return nil
}

func (rq *RedisQueue) worker(workerID int) {
	defer rq.wg.Done()

	logger.Debug("Redis notification worker %d started", workerID)

	for {
		select {
		case <-rq.ctx.Done():
			logger.Debug("Redis notification worker %d stopped", workerID)
			return
		default:
			event, err := rq.Dequeue(rq.ctx)
			if err != nil {
				logger.Error("Redis notification worker %d error: %v", workerID, err)
				continue
			}
			if event == nil {
				continue
			}

			rq.mu.RLock()
			handler := rq.handler
			rq.mu.RUnlock()

			deliver(workerID, handler, *event, rq.Enqueue, rq.deadLetter)
		}
	}
}

var _ interfaces.QueueService = (*RedisQueue)(nil)
