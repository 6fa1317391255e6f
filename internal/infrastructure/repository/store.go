package repository

import (
	"context"
	"errors"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

var _ interfaces.Store = (*GormStore)(nil)

// GormStore binds the gorm repositories to a connection or a transaction
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM backed store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Repos() interfaces.Repositories {
	return newGormRepositories(s.db)
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(repos interfaces.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newGormRepositories(tx))
	})
}

func newGormRepositories(db *gorm.DB) interfaces.Repositories {
	return interfaces.Repositories{
		Sessions:      NewLabSessionRepository(db),
		Slots:         NewTimeSlotRepository(db),
		Registrations: NewRegistrationRepository(db),
		Attendance:    NewAttendanceRepository(db),
		Students:      NewStudentRepository(db),
		Catalog:       NewCatalogRepository(db),
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// translateRegistrationError maps the (student, session) unique index onto the domain error
func translateRegistrationError(err error) error {
	if err != nil && isUniqueViolation(err) {
		return domain.ErrAlreadyRegistered
	}
	return err
}
