package service

import (
	"context"
	"fmt"
	"time"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"
	"lab-registration/pkg/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SlotAllocator is the only writer of TimeSlot.CurrentCount. Every change goes
// through a single conditional update in the store.
type SlotAllocator struct {
	now func() time.Time
}

func NewSlotAllocator(now func() time.Time) *SlotAllocator {
	if now == nil {
		now = time.Now
	}
	return &SlotAllocator{now: now}
}

// Assign takes one seat in slot for reg. It returns false when the slot is full
// or inactive; the caller falls back to the waitlist.
func (a *SlotAllocator) Assign(ctx context.Context, repos interfaces.Repositories, reg *domain.Registration, slot *domain.TimeSlot) (bool, error) {
	if slot.LabSessionID != reg.LabSessionID {
		return false, domain.ErrSlotNotInSession
	}
	if !slot.Active {
		return false, nil
	}
	ok, err := repos.Slots.IncrementIfAvailable(ctx, slot.ID)
	if err != nil {
		return false, fmt.Errorf("failed to reserve seat in slot %s: %w", slot.ID, err)
	}
	if !ok {
		return false, nil
	}
	slot.CurrentCount++
	reg.Confirm(slot.ID, a.now())
	return true, nil
}

// AssignFirstAvailable assigns the earliest open slot of the session. It returns
// false when no slot has room.
func (a *SlotAllocator) AssignFirstAvailable(ctx context.Context, repos interfaces.Repositories, reg *domain.Registration) (bool, error) {
	slot, err := repos.Slots.FindFirstAvailable(ctx, reg.LabSessionID)
	if err != nil {
		return false, fmt.Errorf("failed to find available slot: %w", err)
	}
	if slot == nil {
		return false, nil
	}
	return a.Assign(ctx, repos, reg, slot)
}

// Release gives back the seat held by a confirmed registration. It is a no-op
// for registrations without a slot.
func (a *SlotAllocator) Release(ctx context.Context, repos interfaces.Repositories, reg *domain.Registration) error {
	if reg.TimeSlotID == nil || reg.Status != domain.StatusConfirmed {
		return nil
	}
	if err := a.release(ctx, repos, *reg.TimeSlotID, reg); err != nil {
		return err
	}
	reg.TimeSlotID = nil
	return nil
}

// release decrements the slot counter. A counter already at zero means a seat
// was given back twice; it is reported rather than driven negative.
func (a *SlotAllocator) release(ctx context.Context, repos interfaces.Repositories, slotID uuid.UUID, reg *domain.Registration) error {
	ok, err := repos.Slots.DecrementIfPositive(ctx, slotID)
	if err != nil {
		return fmt.Errorf("failed to release slot %s: %w", slotID, err)
	}
	if !ok {
		logger.WithFields(logrus.Fields{
			"slot_id":         slotID,
			"registration_id": reg.ID,
			"session_id":      reg.LabSessionID,
		}).Warn("slot counter already at zero on release")
	}
	return nil
}

// Move reserves a seat in target before releasing the current one, so a failed
// move leaves the registration where it was.
func (a *SlotAllocator) Move(ctx context.Context, repos interfaces.Repositories, reg *domain.Registration, target *domain.TimeSlot) (bool, error) {
	previous := reg.TimeSlotID
	confirmedAt := reg.ConfirmedAt
	ok, err := a.Assign(ctx, repos, reg, target)
	if err != nil || !ok {
		return ok, err
	}
	reg.ConfirmedAt = confirmedAt
	if previous != nil {
		if err := a.release(ctx, repos, *previous, reg); err != nil {
			return false, err
		}
	}
	return true, nil
}
