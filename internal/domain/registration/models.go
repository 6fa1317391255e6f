package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a lab session
type SessionStatus string

const (
	SessionDraft     SessionStatus = "DRAFT"
	SessionOpen      SessionStatus = "OPEN"
	SessionClosed    SessionStatus = "CLOSED"
	SessionCancelled SessionStatus = "CANCELLED"
	SessionCompleted SessionStatus = "COMPLETED"
)

// RegistrationStatus represents the status of a registration
type RegistrationStatus string

const (
	StatusPending    RegistrationStatus = "PENDING"
	StatusConfirmed  RegistrationStatus = "CONFIRMED"
	StatusWaitlisted RegistrationStatus = "WAITLISTED"
	StatusCancelled  RegistrationStatus = "CANCELLED"
	StatusCompleted  RegistrationStatus = "COMPLETED"
)

// ActiveStatuses are the registration states that hold a place in a session
var ActiveStatuses = []RegistrationStatus{StatusPending, StatusConfirmed, StatusWaitlisted}

// Program is read-only reference data from the program catalog
type Program struct {
	ProgramID uuid.UUID `json:"program_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Code      string    `json:"code" gorm:"unique;not null"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Course is read-only reference data from the course catalog
type Course struct {
	CourseID   uuid.UUID `json:"course_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	CourseCode string    `json:"course_code" gorm:"unique;not null"`
	CourseName string    `json:"course_name" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Student is the local projection of an identity that registered for a session.
// It is refreshed from the authenticated principal on every registration.
type Student struct {
	StudentID uuid.UUID  `json:"student_id" gorm:"type:uuid;primary_key"`
	Email     string     `json:"email" gorm:"not null"`
	FullName  string     `json:"full_name"`
	ProgramID *uuid.UUID `json:"program_id,omitempty" gorm:"type:uuid"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// LabSession represents a recurring lab offering
type LabSession struct {
	ID                   uuid.UUID     `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Name                 string        `json:"name" gorm:"not null"`
	Description          string        `json:"description"`
	Instructions         string        `json:"instructions"`
	Room                 string        `json:"room" gorm:"not null;index"`
	StartDate            time.Time     `json:"start_date" gorm:"type:date;not null"`
	EndDate              time.Time     `json:"end_date" gorm:"type:date;not null"`
	StartTime            TimeOfDay     `json:"start_time" gorm:"type:time;not null"`
	EndTime              TimeOfDay     `json:"end_time" gorm:"type:time;not null"`
	SessionDays          Weekdays      `json:"session_days" gorm:"type:text;not null"`
	MaxStudentsPerSlot   int           `json:"max_students_per_slot" gorm:"not null;check:max_students_per_slot > 0"`
	SlotsPerDay          int           `json:"slots_per_day" gorm:"not null;check:slots_per_day > 0"`
	Status               SessionStatus `json:"status" gorm:"type:text;not null;default:DRAFT"`
	CourseID             uuid.UUID     `json:"course_id" gorm:"type:uuid;not null"`
	CreatedBy            uuid.UUID     `json:"created_by" gorm:"type:uuid;not null"`
	OpenToAllPrograms    bool          `json:"open_to_all_programs" gorm:"not null;default:false"`
	AllowedProgramIDs    []uuid.UUID   `json:"allowed_program_ids" gorm:"-"`
	RegistrationDeadline *time.Time    `json:"registration_deadline,omitempty"`
	CreatedAt            time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TotalCapacity is the number of students one run of the session can hold
func (s *LabSession) TotalCapacity() int {
	return s.SlotsPerDay * s.MaxStudentsPerSlot
}

// DurationWeeks is the number of calendar weeks the session spans, at least one.
func (s *LabSession) DurationWeeks() int {
	days := int(s.EndDate.Sub(s.StartDate).Hours() / 24)
	weeks := (days + 1 + 6) / 7
	if weeks < 1 {
		return 1
	}
	return weeks
}

// TotalSessions is the number of lab meetings a confirmed student attends
func (s *LabSession) TotalSessions() int {
	return s.DurationWeeks() * len(s.SessionDays)
}

// MeetsOn reports whether date is one of the session's meeting days
func (s *LabSession) MeetsOn(date time.Time) bool {
	day := DateOf(date)
	if day.Before(DateOf(s.StartDate)) || day.After(DateOf(s.EndDate)) {
		return false
	}
	return s.SessionDays.Contains(day.Weekday())
}

// Schedule returns the slot grid input for the session
func (s *LabSession) Schedule() Schedule {
	return Schedule{
		StartDate:          s.StartDate,
		EndDate:            s.EndDate,
		StartTime:          s.StartTime,
		EndTime:            s.EndTime,
		Days:               s.SessionDays,
		SlotsPerDay:        s.SlotsPerDay,
		MaxStudentsPerSlot: s.MaxStudentsPerSlot,
	}
}

// LabSessionProgram is a row of the session program allow-list
type LabSessionProgram struct {
	LabSessionID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProgramID    uuid.UUID `gorm:"type:uuid;primaryKey"`
}

// TimeSlot is one bookable occurrence of a lab session
type TimeSlot struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	LabSessionID uuid.UUID `json:"lab_session_id" gorm:"type:uuid;not null;index"`
	SessionDate  time.Time `json:"session_date" gorm:"type:date;not null"`
	StartTime    TimeOfDay `json:"start_time" gorm:"type:time;not null"`
	EndTime      TimeOfDay `json:"end_time" gorm:"type:time;not null"`
	GroupNumber  int       `json:"group_number" gorm:"not null"`
	MaxStudents  int       `json:"max_students" gorm:"not null;check:max_students > 0"`
	CurrentCount int       `json:"current_count" gorm:"not null;default:0;check:current_count >= 0"`
	Active       bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (t *TimeSlot) IsFull() bool {
	return t.CurrentCount >= t.MaxStudents
}

func (t *TimeSlot) AvailableSpots() int {
	if t.IsFull() {
		return 0
	}
	return t.MaxStudents - t.CurrentCount
}

// Selectable reports whether the slot can take one more student
func (t *TimeSlot) Selectable() bool {
	return t.Active && !t.IsFull()
}

// Registration binds one student to one lab session for its entire run
type Registration struct {
	ID               uuid.UUID          `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	StudentID        uuid.UUID          `json:"student_id" gorm:"type:uuid;not null;uniqueIndex:idx_registration_student_session"`
	LabSessionID     uuid.UUID          `json:"lab_session_id" gorm:"type:uuid;not null;uniqueIndex:idx_registration_student_session"`
	TimeSlotID       *uuid.UUID         `json:"time_slot_id,omitempty" gorm:"type:uuid"`
	Status           RegistrationStatus `json:"status" gorm:"type:text;not null;default:PENDING"`
	WaitlistPosition *int               `json:"waitlist_position,omitempty"`
	StudentNotes     string             `json:"student_notes,omitempty"`
	AdminNotes       string             `json:"admin_notes,omitempty"`
	AttendedSessions int                `json:"attended_sessions" gorm:"not null;default:0"`
	TotalSessions    int                `json:"total_sessions" gorm:"not null;default:0"`
	RegisteredAt     time.Time          `json:"registered_at" gorm:"not null"`
	ConfirmedAt      *time.Time         `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time         `json:"cancelled_at,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

// Attendance records whether the student of a registration was present on one
// meeting date. There is at most one record per registration and date.
type Attendance struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	RegistrationID uuid.UUID  `json:"registration_id" gorm:"type:uuid;not null;uniqueIndex:idx_attendance_registration_date"`
	SessionDate    time.Time  `json:"session_date" gorm:"type:date;not null;uniqueIndex:idx_attendance_registration_date"`
	Present        bool       `json:"present" gorm:"not null;default:false"`
	CheckInTime    *time.Time `json:"check_in_time,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	MarkedBy       *uuid.UUID `json:"marked_by,omitempty" gorm:"type:uuid"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// SessionFilter narrows session listings
type SessionFilter struct {
	Status    *SessionStatus
	CourseID  *uuid.UUID
	ProgramID *uuid.UUID
	// EndsOnOrAfter keeps sessions whose end date is not before the given day
	EndsOnOrAfter *time.Time
}

// SlotSummary aggregates the slots of one session
type SlotSummary struct {
	TotalSlots      int `json:"total_slots"`
	TotalCapacity   int `json:"total_capacity"`
	TotalRegistered int `json:"total_registered"`
	TotalAvailable  int `json:"total_available"`
}

// Summarize folds a slot list into a SlotSummary. Inactive slots count toward
// registered seats but not toward available ones.
func Summarize(slots []*TimeSlot) SlotSummary {
	var sum SlotSummary
	for _, slot := range slots {
		sum.TotalSlots++
		sum.TotalCapacity += slot.MaxStudents
		sum.TotalRegistered += slot.CurrentCount
		if slot.Active {
			sum.TotalAvailable += slot.AvailableSpots()
		}
	}
	return sum
}
