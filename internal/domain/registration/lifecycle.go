package domain

import (
	"time"

	"github.com/google/uuid"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionDraft:     {SessionOpen, SessionCancelled},
	SessionOpen:      {SessionClosed, SessionCancelled},
	SessionClosed:    {SessionCompleted, SessionOpen},
	SessionCancelled: nil,
	SessionCompleted: nil,
}

var sessionTransitionMessages = map[SessionStatus]string{
	SessionDraft:     "draft sessions can only be opened or cancelled",
	SessionOpen:      "open sessions can only be closed or cancelled",
	SessionClosed:    "closed sessions can only be marked complete or reopened",
	SessionCancelled: "cannot change the status of a cancelled or completed session",
	SessionCompleted: "cannot change the status of a cancelled or completed session",
}

func (s SessionStatus) Valid() bool {
	_, ok := sessionTransitions[s]
	return ok
}

func (s SessionStatus) Terminal() bool {
	return s == SessionCancelled || s == SessionCompleted
}

// CanTransitionTo reports whether the session state machine allows from -> to
func (s SessionStatus) CanTransitionTo(to SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the session to a new status or returns an InvalidTransitionError
func (s *LabSession) TransitionTo(to SessionStatus) error {
	if !to.Valid() {
		return NewBadRequest("unknown session status %q", to)
	}
	if !s.Status.CanTransitionTo(to) {
		return &InvalidTransitionError{
			From:    string(s.Status),
			To:      string(to),
			Message: sessionTransitionMessages[s.Status],
		}
	}
	s.Status = to
	return nil
}

// Deletable reports whether the session may be removed given its active registration count
func (s *LabSession) Deletable(activeRegistrations int64) error {
	if s.Status == SessionOpen {
		return NewBadRequest("cannot delete an open session, close it first")
	}
	if activeRegistrations > 0 {
		return NewBadRequest("cannot delete a session with %d active registrations", activeRegistrations)
	}
	return nil
}

// CheckCapacity rejects a slot layout that cannot seat the current active registrations
func CheckCapacity(slotsPerDay, maxStudentsPerSlot int, activeRegistrations int64) error {
	requested := slotsPerDay * maxStudentsPerSlot
	if int64(requested) < activeRegistrations {
		return &CapacityReductionError{Requested: requested, Active: int(activeRegistrations)}
	}
	return nil
}

func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusWaitlisted, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s RegistrationStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusWaitlisted
}

func (r *Registration) IsActive() bool {
	return r.Status.Active()
}

// Confirm binds the registration to a slot whose counter already includes it
func (r *Registration) Confirm(slotID uuid.UUID, now time.Time) {
	id := slotID
	r.TimeSlotID = &id
	r.Status = StatusConfirmed
	r.ConfirmedAt = &now
	r.WaitlistPosition = nil
}

// Waitlist puts the registration in the queue at the given position
func (r *Registration) Waitlist(position int) {
	pos := position
	r.Status = StatusWaitlisted
	r.TimeSlotID = nil
	r.WaitlistPosition = &pos
}

// Cancel moves the registration to CANCELLED. The caller releases the slot first.
func (r *Registration) Cancel(now time.Time) error {
	switch r.Status {
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusCompleted:
		return ErrCannotCancelCompleted
	}
	r.Status = StatusCancelled
	r.CancelledAt = &now
	r.TimeSlotID = nil
	r.WaitlistPosition = nil
	return nil
}

// Complete marks a finished registration. Slot counters are left as they are.
func (r *Registration) Complete(now time.Time) error {
	if !r.IsActive() {
		return &InvalidTransitionError{From: string(r.Status), To: string(StatusCompleted)}
	}
	r.Status = StatusCompleted
	r.CompletedAt = &now
	r.WaitlistPosition = nil
	return nil
}

// Reactivate revives a cancelled row for a fresh registration attempt
func (r *Registration) Reactivate(notes string, totalSessions int, now time.Time) {
	r.Status = StatusPending
	r.RegisteredAt = now
	r.CancelledAt = nil
	r.ConfirmedAt = nil
	r.CompletedAt = nil
	r.TimeSlotID = nil
	r.WaitlistPosition = nil
	r.AdminNotes = ""
	r.StudentNotes = notes
	r.AttendedSessions = 0
	r.TotalSessions = totalSessions
}

// AttendanceRecordable reports whether attendance may be taken for the registration
func (r *Registration) AttendanceRecordable() bool {
	return r.Status == StatusConfirmed || r.Status == StatusCompleted
}

// RecordAttendance refreshes the counters from the stored attendance records.
// TotalSessions never shrinks below the number of dates already recorded.
func (r *Registration) RecordAttendance(present, recorded int) {
	r.AttendedSessions = present
	if recorded > r.TotalSessions {
		r.TotalSessions = recorded
	}
}
