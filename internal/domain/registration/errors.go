package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Error categories. Every domain error matches exactly one of them with errors.Is.
var (
	ErrInvalid    = errors.New("invalid request")
	ErrConflict   = errors.New("state conflict")
	ErrNotFound   = errors.New("not found")
	ErrPermission = errors.New("permission denied")
)

type domainError struct {
	kind error
	msg  string
}

func (e *domainError) Error() string { return e.msg }
func (e *domainError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &domainError{kind: kind, msg: msg}
}

var (
	ErrSessionNotOpen        = newError(ErrConflict, "lab session is not open for registration")
	ErrDeadlinePassed        = newError(ErrConflict, "registration deadline has passed")
	ErrAlreadyRegistered     = newError(ErrConflict, "already registered for this lab session")
	ErrProgramNotEligible    = newError(ErrConflict, "this lab session is not available for your program")
	ErrAlreadyCancelled      = newError(ErrConflict, "registration is already cancelled")
	ErrCannotCancelCompleted = newError(ErrConflict, "cannot cancel a completed registration")
	ErrSlotNotConfirmed      = newError(ErrConflict, "can only change slot for confirmed registrations")
	ErrSlotHasRegistrations  = newError(ErrConflict, "cannot delete a time slot with registrations")
	ErrAttendanceNotAllowed  = newError(ErrConflict, "attendance is only recorded for confirmed or completed registrations")

	ErrForbidden           = newError(ErrPermission, "you can only cancel your own registrations")
	ErrAttendanceForbidden = newError(ErrPermission, "you can only view attendance of your own registrations")

	ErrSessionNotFound      = newError(ErrNotFound, "lab session not found")
	ErrSlotNotFound         = newError(ErrNotFound, "time slot not found")
	ErrRegistrationNotFound = newError(ErrNotFound, "registration not found")
	ErrCourseNotFound       = newError(ErrNotFound, "course not found")
	ErrProgramNotFound      = newError(ErrNotFound, "program not found")

	ErrSlotNotInSession         = newError(ErrInvalid, "time slot does not belong to this lab session")
	ErrRegistrationNotInSession = newError(ErrInvalid, "registration does not belong to this lab session")
	ErrNotSessionDate           = newError(ErrInvalid, "the lab session does not meet on this date")
)

// InvalidScheduleError reports a session schedule that cannot produce a slot grid
type InvalidScheduleError struct {
	Reason string
}

func (e *InvalidScheduleError) Error() string { return "invalid schedule: " + e.Reason }
func (e *InvalidScheduleError) Unwrap() error { return ErrInvalid }

// RoomConflictError names the existing session that already occupies the room
type RoomConflictError struct {
	Room        string
	SessionID   uuid.UUID
	SessionName string
	Date        time.Time
	StartTime   TimeOfDay
	EndTime     TimeOfDay
}

func (e *RoomConflictError) Error() string {
	return fmt.Sprintf("room %s is already booked on %s from %s to %s by %q",
		e.Room, e.Date.Format(DateLayout), e.StartTime, e.EndTime, e.SessionName)
}

func (e *RoomConflictError) Unwrap() error { return ErrConflict }

// InvalidTransitionError reports a status change the state machine forbids
type InvalidTransitionError struct {
	From    string
	To      string
	Message string
}

func (e *InvalidTransitionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrConflict }

// CapacityReductionError rejects a capacity below the active registration count
type CapacityReductionError struct {
	Requested int
	Active    int
}

func (e *CapacityReductionError) Error() string {
	return fmt.Sprintf("cannot reduce capacity to %d: %d active registrations", e.Requested, e.Active)
}

func (e *CapacityReductionError) Unwrap() error { return ErrConflict }

// BadRequestError is a rejected operation that is not a plain state conflict
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string { return e.Message }
func (e *BadRequestError) Unwrap() error { return ErrInvalid }

func NewBadRequest(format string, args ...interface{}) error {
	return &BadRequestError{Message: fmt.Sprintf(format, args...)}
}
