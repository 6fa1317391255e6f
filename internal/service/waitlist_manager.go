package service

import (
	"context"
	"fmt"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"
	"lab-registration/pkg/logger"

	"github.com/google/uuid"
)

// WaitlistManager keeps waitlist positions of a session contiguous from 1.
// Callers hold the session row lock for the whole transaction.
type WaitlistManager struct {
	allocator *SlotAllocator
}

func NewWaitlistManager(allocator *SlotAllocator) *WaitlistManager {
	return &WaitlistManager{allocator: allocator}
}

// Enqueue appends reg to the end of the session waitlist
func (w *WaitlistManager) Enqueue(ctx context.Context, repos interfaces.Repositories, reg *domain.Registration) (int, error) {
	size, err := repos.Registrations.CountWaitlisted(ctx, reg.LabSessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count waitlist: %w", err)
	}
	position := int(size) + 1
	reg.Waitlist(position)
	return position, nil
}

// Promote moves the head of the waitlist into the best available slot. It
// returns nil when the waitlist is empty or no slot has room.
func (w *WaitlistManager) Promote(ctx context.Context, repos interfaces.Repositories, sessionID uuid.UUID) (*domain.Registration, error) {
	waitlisted, err := repos.Registrations.ListWaitlisted(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load waitlist: %w", err)
	}
	if len(waitlisted) == 0 {
		return nil, nil
	}

	head := waitlisted[0]
	for {
		slot, err := repos.Slots.FindFirstAvailable(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to find available slot: %w", err)
		}
		if slot == nil {
			return nil, nil
		}
		ok, err := w.allocator.Assign(ctx, repos, head, slot)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		// slot filled by a direct registration between select and update
	}

	if err := repos.Registrations.Update(ctx, head); err != nil {
		return nil, fmt.Errorf("failed to confirm promoted registration: %w", err)
	}
	if err := w.renumber(ctx, repos, waitlisted[1:]); err != nil {
		return nil, err
	}

	logger.Info("Promoted registration %s from waitlist of session %s", head.ID, sessionID)
	return head, nil
}

// Fill promotes until the waitlist is empty or the session has no free seat
func (w *WaitlistManager) Fill(ctx context.Context, repos interfaces.Repositories, sessionID uuid.UUID) ([]*domain.Registration, error) {
	var promoted []*domain.Registration
	for {
		reg, err := w.Promote(ctx, repos, sessionID)
		if err != nil {
			return promoted, err
		}
		if reg == nil {
			return promoted, nil
		}
		promoted = append(promoted, reg)
	}
}

// Compact closes the gap left by a waitlisted registration that was removed
func (w *WaitlistManager) Compact(ctx context.Context, repos interfaces.Repositories, sessionID uuid.UUID) error {
	waitlisted, err := repos.Registrations.ListWaitlisted(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load waitlist: %w", err)
	}
	return w.renumber(ctx, repos, waitlisted)
}

func (w *WaitlistManager) renumber(ctx context.Context, repos interfaces.Repositories, ordered []*domain.Registration) error {
	for i, reg := range ordered {
		want := i + 1
		if reg.WaitlistPosition != nil && *reg.WaitlistPosition == want {
			continue
		}
		reg.Waitlist(want)
		if err := repos.Registrations.Update(ctx, reg); err != nil {
			return fmt.Errorf("failed to renumber waitlist entry %s: %w", reg.ID, err)
		}
	}
	return nil
}
