package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventRegistrationConfirmed  EventType = "registration_confirmed"
	EventRegistrationWaitlisted EventType = "registration_waitlisted"
	EventWaitlistPromoted       EventType = "waitlist_promoted"
)

// NotificationEvent is emitted by the registration core after commit
type NotificationEvent struct {
	Type      EventType `json:"type"`
	StudentID uuid.UUID `json:"student_id"`
	SessionID uuid.UUID `json:"session_id"`
	Position  int       `json:"position,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Attempts  int       `json:"attempts"`
}

// EventHandler processes one dequeued event
type EventHandler func(ctx context.Context, event NotificationEvent) error

type QueueService interface {
	Enqueue(ctx context.Context, event NotificationEvent) error
	Dequeue(ctx context.Context) (*NotificationEvent, error)
	Length(ctx context.Context) (int, error)
	SetHandler(handler EventHandler)
	StartWorkers()
	StopWorkers()
}
