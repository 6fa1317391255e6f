package interfaces

import (
	"context"
	"time"

	domain "lab-registration/internal/domain/registration"

	"github.com/google/uuid"
)

// Lookups return (nil, nil) when the row does not exist.

type LabSessionRepository interface {
	Create(ctx context.Context, session *domain.LabSession) error
	Update(ctx context.Context, session *domain.LabSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LabSession, error)
	// GetByIDForUpdate locks the session row until the surrounding transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.LabSession, error)
	List(ctx context.Context, filter domain.SessionFilter) ([]*domain.LabSession, error)
	// FindByRoomInRange returns non-cancelled sessions in the room whose date range intersects [from, to]
	FindByRoomInRange(ctx context.Context, room string, from, to time.Time) ([]*domain.LabSession, error)
	// LockRoom serializes schedule writers of one room until the surrounding transaction ends
	LockRoom(ctx context.Context, room string) error
	FindExpiredOpen(ctx context.Context, today time.Time) ([]*domain.LabSession, error)
}

type TimeSlotRepository interface {
	CreateBatch(ctx context.Context, slots []*domain.TimeSlot) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TimeSlot, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.TimeSlot, error)
	ListAvailable(ctx context.Context, sessionID uuid.UUID) ([]*domain.TimeSlot, error)
	// FindFirstAvailable picks the active, non-full slot with the earliest date then lowest group
	FindFirstAvailable(ctx context.Context, sessionID uuid.UUID) (*domain.TimeSlot, error)
	FindAvailableByGroup(ctx context.Context, sessionID uuid.UUID, groupNumber int) (*domain.TimeSlot, error)
	// IncrementIfAvailable atomically adds one seat iff current_count < max_students
	IncrementIfAvailable(ctx context.Context, id uuid.UUID) (bool, error)
	// DecrementIfPositive atomically removes one seat iff current_count > 0
	DecrementIfPositive(ctx context.Context, id uuid.UUID) (bool, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// UpdateMaxStudents sets every slot of the session to max, never below its current count
	UpdateMaxStudents(ctx context.Context, sessionID uuid.UUID, max int) error
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type RegistrationRepository interface {
	Create(ctx context.Context, registration *domain.Registration) error
	Update(ctx context.Context, registration *domain.Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error)
	GetByStudentAndSession(ctx context.Context, studentID, sessionID uuid.UUID) (*domain.Registration, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID, activeOnly bool) ([]*domain.Registration, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Registration, error)
	ListByStatus(ctx context.Context, sessionID uuid.UUID, status domain.RegistrationStatus) ([]*domain.Registration, error)
	// ListWaitlisted orders by waitlist position then registration time
	ListWaitlisted(ctx context.Context, sessionID uuid.UUID) ([]*domain.Registration, error)
	CountActive(ctx context.Context, sessionID uuid.UUID) (int64, error)
	CountWaitlisted(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

type AttendanceRepository interface {
	Create(ctx context.Context, attendance *domain.Attendance) error
	Update(ctx context.Context, attendance *domain.Attendance) error
	GetByRegistrationAndDate(ctx context.Context, registrationID uuid.UUID, date time.Time) (*domain.Attendance, error)
	// ListByRegistration orders by session date
	ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]*domain.Attendance, error)
	// ListBySession returns the records of every registration of the session, optionally for one date
	ListBySession(ctx context.Context, sessionID uuid.UUID, date *time.Time) ([]*domain.Attendance, error)
	// CountByRegistration returns the number of dates marked present and the number of dates recorded
	CountByRegistration(ctx context.Context, registrationID uuid.UUID) (present, recorded int64, err error)
}

type StudentRepository interface {
	Upsert(ctx context.Context, student *domain.Student) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Student, error)
}

// CatalogRepository reads the course and program reference data
type CatalogRepository interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*domain.Course, error)
	GetPrograms(ctx context.Context, ids []uuid.UUID) ([]*domain.Program, error)
}

// Repositories is the set of repositories bound to one connection or transaction
type Repositories struct {
	Sessions      LabSessionRepository
	Slots         TimeSlotRepository
	Registrations RegistrationRepository
	Attendance    AttendanceRepository
	Students      StudentRepository
	Catalog       CatalogRepository
}

// Store hands out repositories and runs units of work atomically
type Store interface {
	Repos() Repositories
	// WithinTx commits when fn returns nil and rolls back otherwise
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
}

// OccupancyRow is one per-date line of a session occupancy report
type OccupancyRow struct {
	SessionDate time.Time `db:"session_date" json:"session_date"`
	Slots       int       `db:"slots" json:"slots"`
	Capacity    int       `db:"capacity" json:"capacity"`
	Registered  int       `db:"registered" json:"registered"`
}

type OccupancyReader interface {
	SessionOccupancy(ctx context.Context, sessionID uuid.UUID) ([]OccupancyRow, error)
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Save(ctx context.Context, record *IdempotencyRecord, ttl time.Duration) error
}

// IdempotencyRecord caches the response of one idempotent request
type IdempotencyRecord struct {
	Key          string    `json:"key"`
	PrincipalID  uuid.UUID `json:"principal_id"`
	RequestHash  string    `json:"request_hash"`
	StatusCode   int       `json:"status_code"`
	ResponseBody string    `json:"response_body"`
	CreatedAt    time.Time `json:"created_at"`
}
