package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	interfaces "lab-registration/internal/interfaces/infrastructure"
	"lab-registration/pkg/logger"
)

const (
	// MaxDeliveryAttempts bounds how often a failing event is handed to the handler
	MaxDeliveryAttempts   = 3
	DefaultDequeueTimeout = 2 * time.Second
	DefaultJobTimeout     = 30 * time.Second
)

type Queue struct {
	events chan interfaces.NotificationEvent

	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex

	handler interfaces.EventHandler
}

func NewInMemoryQueue(bufferSize, workers int) *Queue {
	ctx, cancel := context.WithCancel(context.Background())

	if bufferSize <= 0 {
		bufferSize = 1
	}
	if workers <= 0 {
		workers = 1
	}

	return &Queue{
		events:  make(chan interfaces.NotificationEvent, bufferSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (q *Queue) SetHandler(handler interfaces.EventHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
}

func (q *Queue) StartWorkers() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return
	}

	if q.handler == nil {
		logger.Warn("Event handler not set, workers cannot process events")
		return
	}

	logger.Info("Starting %d queue workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.started = true
}

func (q *Queue) StopWorkers() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return
	}

	logger.Info("Stopping queue workers...")
	q.cancel()
	q.wg.Wait()
	q.started = false
	logger.Info("Queue workers stopped")
}

func (q *Queue) Enqueue(ctx context.Context, event interfaces.NotificationEvent) error {
	select {
	case q.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("notification queue is full")
	}
}

func (q *Queue) Dequeue(ctx context.Context) (*interfaces.NotificationEvent, error) {
	select {
	case event := <-q.events:
		return &event, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) Length(ctx context.Context) (int, error) {
	return len(q.events), nil
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()

	logger.Debug("Notification worker %d started", workerID)

	for {
		select {
		case <-q.ctx.Done():
			logger.Debug("Notification worker %d stopped", workerID)
			return
		default:
			ctx, cancel := context.WithTimeout(q.ctx, DefaultDequeueTimeout)
			event, err := q.Dequeue(ctx)
			cancel()

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					continue
				}
				logger.Error("Notification worker %d error: %v", workerID, err)
				continue
			}

			q.mu.RLock()
			handler := q.handler
			q.mu.RUnlock()

			deliver(workerID, handler, *event, q.Enqueue, nil)
		}
	}
}

// deliver runs the handler once and either requeues the event or hands it to
// dead once it has used up its attempts. dead may be nil.
func deliver(
	workerID int,
	handler interfaces.EventHandler,
	event interfaces.NotificationEvent,
	requeue func(context.Context, interfaces.NotificationEvent) error,
	dead func(context.Context, interfaces.NotificationEvent) error,
) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultJobTimeout)
	defer cancel()

	err := handler(ctx, event)
	if err == nil {
		logger.Debug("Worker %d delivered %s for student %s", workerID, event.Type, event.StudentID)
		return
	}

	event.Attempts++
	if event.Attempts < MaxDeliveryAttempts {
		logger.Warn("Worker %d failed to deliver %s for student %s (attempt %d): %v",
			workerID, event.Type, event.StudentID, event.Attempts, err)
		if rerr := requeue(ctx, event); rerr != nil {
			logger.Error("Worker %d failed to requeue event: %v", workerID, rerr)
		}
		return
	}

	logger.Error("Worker %d dropping %s for student %s after %d attempts: %v",
		workerID, event.Type, event.StudentID, event.Attempts, err)
	if dead != nil {
		if derr := dead(ctx, event); derr != nil {
			logger.Error("Worker %d failed to dead-letter event: %v", workerID, derr)
		}
	}
}

var _ interfaces.QueueService = (*Queue)(nil)
