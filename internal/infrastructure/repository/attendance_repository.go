package repository

import (
	"context"
	"time"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var _ interfaces.AttendanceRepository = (*AttendanceRepository)(nil)

type AttendanceRepository struct {
	db *gorm.DB
}

func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) Create(ctx context.Context, attendance *domain.Attendance) error {
	return r.db.WithContext(ctx).Create(attendance).Error
}

func (r *AttendanceRepository) Update(ctx context.Context, attendance *domain.Attendance) error {
	return r.db.WithContext(ctx).Save(attendance).Error
}

func (r *AttendanceRepository) GetByRegistrationAndDate(ctx context.Context, registrationID uuid.UUID, date time.Time) (*domain.Attendance, error) {
	var attendance domain.Attendance
	err := r.db.WithContext(ctx).
		Where("registration_id = ? AND session_date = ?", registrationID, domain.DateOf(date)).
		First(&attendance).Error
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &attendance, nil
}

func (r *AttendanceRepository) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]*domain.Attendance, error) {
	var records []*domain.Attendance
	err := r.db.WithContext(ctx).
		Where("registration_id = ?", registrationID).
		Order("session_date").
		Find(&records).Error
	return records, err
}

func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, date *time.Time) ([]*domain.Attendance, error) {
	query := r.db.WithContext(ctx).
		Joins("JOIN registrations ON registrations.id = attendances.registration_id").
		Where("registrations.lab_session_id = ?", sessionID)
	if date != nil {
		query = query.Where("attendances.session_date = ?", domain.DateOf(*date))
	}

	var records []*domain.Attendance
	err := query.Order("attendances.session_date, attendances.created_at").Find(&records).Error
	return records, err
}

func (r *AttendanceRepository) CountByRegistration(ctx context.Context, registrationID uuid.UUID) (int64, int64, error) {
	var counts struct {
		Present  int64
		Recorded int64
	}
	err := r.db.WithContext(ctx).Model(&domain.Attendance{}).
		Select("COUNT(*) FILTER (WHERE present) AS present, COUNT(*) AS recorded").
		Where("registration_id = ?", registrationID).
		Scan(&counts).Error
	return counts.Present, counts.Recorded, err
}
