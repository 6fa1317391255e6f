package service

import (
	"context"
	"fmt"
	"time"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

type RoomConflictChecker struct{}

func NewRoomConflictChecker() *RoomConflictChecker {
	return &RoomConflictChecker{}
}

// Check fails with a RoomConflictError on the first date where another session in
// the same room runs at an overlapping time. exclude skips the session being updated.
// It must run inside the transaction that writes the session: the room stays
// locked until that transaction ends.
func (c *RoomConflictChecker) Check(ctx context.Context, sessions interfaces.LabSessionRepository, room string, schedule domain.Schedule, exclude *uuid.UUID) error {
	dates := schedule.Dates()
	if len(dates) == 0 {
		return nil
	}

	if err := sessions.LockRoom(ctx, room); err != nil {
		return fmt.Errorf("failed to lock room %s: %w", room, err)
	}

	existing, err := sessions.FindByRoomInRange(ctx, room, dates[0], dates[len(dates)-1])
	if err != nil {
		return fmt.Errorf("failed to load sessions for room %s: %w", room, err)
	}

	for _, date := range dates {
		for _, other := range existing {
			if exclude != nil && other.ID == *exclude {
				continue
			}
			if !runsOn(other, date) {
				continue
			}
			if domain.Overlaps(schedule.StartTime, schedule.EndTime, other.StartTime, other.EndTime) {
				return &domain.RoomConflictError{
					Room:        room,
					SessionID:   other.ID,
					SessionName: other.Name,
					Date:        date,
					StartTime:   other.StartTime,
					EndTime:     other.EndTime,
				}
			}
		}
	}
	return nil
}

func runsOn(session *domain.LabSession, date time.Time) bool {
	day := domain.DateOf(date)
	if day.Before(domain.DateOf(session.StartDate)) || day.After(domain.DateOf(session.EndDate)) {
		return false
	}
	return session.SessionDays.Contains(day.Weekday())
}
