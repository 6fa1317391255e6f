package service

import (
	"context"
	"time"

	interfaces "lab-registration/internal/interfaces/infrastructure"
	serviceInterfaces "lab-registration/internal/interfaces/service"
	"lab-registration/pkg/logger"

	"github.com/sirupsen/logrus"
)

const publishTimeout = 2 * time.Second

var _ serviceInterfaces.NotificationPublisher = (*QueuePublisher)(nil)

// QueuePublisher hands committed events to the notification queue. Delivery
// failures are logged and never reach the caller.
type QueuePublisher struct {
	queue interfaces.QueueService
}

func NewQueuePublisher(queue interfaces.QueueService) *QueuePublisher {
	return &QueuePublisher{queue: queue}
}

func (p *QueuePublisher) Publish(ctx context.Context, events ...interfaces.NotificationEvent) {
	if p == nil || p.queue == nil {
		return
	}
	// the request context may already be done once the response is written
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now()
		}
		if err := p.queue.Enqueue(pubCtx, event); err != nil {
			logger.WithFields(logrus.Fields{
				"event":      event.Type,
				"student_id": event.StudentID,
				"session_id": event.SessionID,
			}).Warnf("Failed to publish notification event: %v", err)
		}
	}
}
