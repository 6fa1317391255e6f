package service

import (
	"context"
	"time"

	domain "lab-registration/internal/domain/registration"
	"lab-registration/internal/domain/user"
	infrastructure "lab-registration/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

// Request/Response types for LabSession Service
type CreateSessionRequest struct {
	Name                 string               `json:"name" validate:"required,max=200"`
	Description          string               `json:"description" validate:"max=2000"`
	Instructions         string               `json:"instructions" validate:"max=4000"`
	Room                 string               `json:"room" validate:"required,max=100"`
	StartDate            string               `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate              string               `json:"end_date" validate:"required,datetime=2006-01-02"`
	StartTime            string               `json:"start_time" validate:"required,clock"`
	EndTime              string               `json:"end_time" validate:"required,clock"`
	SessionDays          []string             `json:"session_days" validate:"required,min=1,dive,weekday"`
	MaxStudentsPerSlot   int                  `json:"max_students_per_slot" validate:"required,min=1"`
	SlotsPerDay          int                  `json:"slots_per_day" validate:"required,min=1,max=48"`
	Status               domain.SessionStatus `json:"status" validate:"omitempty,oneof=DRAFT OPEN"`
	CourseID             uuid.UUID            `json:"course_id" validate:"required"`
	OpenToAllPrograms    bool                 `json:"open_to_all_programs"`
	AllowedProgramIDs    []uuid.UUID          `json:"allowed_program_ids"`
	RegistrationDeadline *time.Time           `json:"registration_deadline,omitempty"`
}

// UpdateSessionRequest carries only the fields to change
type UpdateSessionRequest struct {
	Name                 *string      `json:"name,omitempty" validate:"omitempty,max=200"`
	Description          *string      `json:"description,omitempty" validate:"omitempty,max=2000"`
	Instructions         *string      `json:"instructions,omitempty" validate:"omitempty,max=4000"`
	Room                 *string      `json:"room,omitempty" validate:"omitempty,max=100"`
	StartDate            *string      `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate              *string      `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartTime            *string      `json:"start_time,omitempty" validate:"omitempty,clock"`
	EndTime              *string      `json:"end_time,omitempty" validate:"omitempty,clock"`
	SessionDays          []string     `json:"session_days,omitempty" validate:"omitempty,min=1,dive,weekday"`
	MaxStudentsPerSlot   *int         `json:"max_students_per_slot,omitempty" validate:"omitempty,min=1"`
	SlotsPerDay          *int         `json:"slots_per_day,omitempty" validate:"omitempty,min=1,max=48"`
	OpenToAllPrograms    *bool        `json:"open_to_all_programs,omitempty"`
	AllowedProgramIDs    *[]uuid.UUID `json:"allowed_program_ids,omitempty"`
	RegistrationDeadline *time.Time   `json:"registration_deadline,omitempty"`
}

type SessionDetail struct {
	*domain.LabSession
	Slots               []*domain.TimeSlot `json:"slots,omitempty"`
	ActiveRegistrations int64              `json:"active_registrations"`
	Summary             domain.SlotSummary `json:"summary"`
}

// Request/Response types for Registration Service
type RegisterRequest struct {
	SessionID  uuid.UUID  `json:"lab_session_id" validate:"required"`
	TimeSlotID *uuid.UUID `json:"time_slot_id,omitempty"`
	Notes      string     `json:"notes" validate:"max=1000"`
}

type RegistrationResult struct {
	Registration *domain.Registration `json:"registration"`
	Message      string               `json:"message"`
}

type ChangeSlotRequest struct {
	GroupNumber int `json:"group_number" validate:"required,min=1"`
}

type UpdateStatusRequest struct {
	Status     domain.RegistrationStatus `json:"status" validate:"required,oneof=CONFIRMED CANCELLED COMPLETED"`
	AdminNotes *string                   `json:"admin_notes,omitempty" validate:"omitempty,max=1000"`
}

// Request types for Attendance Service
type MarkAttendanceRequest struct {
	SessionID   uuid.UUID          `json:"lab_session_id" validate:"required"`
	SessionDate string             `json:"session_date" validate:"required,datetime=2006-01-02"`
	Records     []AttendanceRecord `json:"attendances" validate:"required,min=1,dive"`
}

type AttendanceRecord struct {
	RegistrationID uuid.UUID `json:"registration_id" validate:"required"`
	Present        *bool     `json:"present" validate:"required"`
	Notes          string    `json:"notes" validate:"max=500"`
}

type LabSessionService interface {
	CreateSession(ctx context.Context, creator *user.Principal, req *CreateSessionRequest) (*SessionDetail, error)
	UpdateSession(ctx context.Context, id uuid.UUID, req *UpdateSessionRequest) (*SessionDetail, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus) (*domain.LabSession, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	GetSession(ctx context.Context, id uuid.UUID) (*SessionDetail, error)
	ListSessions(ctx context.Context, status *domain.SessionStatus) ([]*domain.LabSession, error)
	ListAvailable(ctx context.Context, courseID, programID *uuid.UUID) ([]*domain.LabSession, error)

	ListSlots(ctx context.Context, sessionID uuid.UUID) ([]*domain.TimeSlot, error)
	ListAvailableSlots(ctx context.Context, sessionID uuid.UUID) ([]*domain.TimeSlot, error)
	SlotSummary(ctx context.Context, sessionID uuid.UUID) (*domain.SlotSummary, error)
	SetSlotActive(ctx context.Context, slotID uuid.UUID, active bool) (*domain.TimeSlot, error)
	DeleteSlot(ctx context.Context, slotID uuid.UUID) error
	Occupancy(ctx context.Context, sessionID uuid.UUID) ([]infrastructure.OccupancyRow, error)

	CloseExpired(ctx context.Context) (int, error)
}

type RegistrationService interface {
	Register(ctx context.Context, student *user.Principal, req *RegisterRequest) (*RegistrationResult, error)
	Cancel(ctx context.Context, registrationID uuid.UUID, requester *user.Principal) (*domain.Registration, error)

	ChangeSlot(ctx context.Context, registrationID uuid.UUID, groupNumber int) (*domain.Registration, error)
	UpdateStatus(ctx context.Context, registrationID uuid.UUID, req *UpdateStatusRequest) (*domain.Registration, error)

	ListByStudent(ctx context.Context, studentID uuid.UUID, activeOnly bool) ([]*domain.Registration, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Registration, error)
	Waitlist(ctx context.Context, sessionID uuid.UUID) ([]*domain.Registration, error)
}

type AttendanceService interface {
	MarkAttendance(ctx context.Context, marker *user.Principal, req *MarkAttendanceRequest) ([]*domain.Attendance, error)
	ListByRegistration(ctx context.Context, registrationID uuid.UUID, requester *user.Principal) ([]*domain.Attendance, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID, date *time.Time) ([]*domain.Attendance, error)
}

// NotificationPublisher delivers core events without affecting the caller
type NotificationPublisher interface {
	Publish(ctx context.Context, events ...infrastructure.NotificationEvent)
}
