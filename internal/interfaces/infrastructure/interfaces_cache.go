package interfaces

import (
	"context"
	"time"

	domain "lab-registration/internal/domain/registration"

	"github.com/google/uuid"
)

// CacheService holds short lived read models. Misses return (nil, nil).
type CacheService interface {
	GetSlotSummary(ctx context.Context, sessionID uuid.UUID) (*domain.SlotSummary, error)
	SetSlotSummary(ctx context.Context, sessionID uuid.UUID, summary *domain.SlotSummary, ttl time.Duration) error
	InvalidateSession(ctx context.Context, sessionID uuid.UUID) error

	Health(ctx context.Context) error
	Close() error
}
