package repository

import (
	"context"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var _ interfaces.RegistrationRepository = (*RegistrationRepository)(nil)

type RegistrationRepository struct {
	db *gorm.DB
}

func NewRegistrationRepository(db *gorm.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) Create(ctx context.Context, registration *domain.Registration) error {
	return translateRegistrationError(r.db.WithContext(ctx).Create(registration).Error)
}

func (r *RegistrationRepository) Update(ctx context.Context, registration *domain.Registration) error {
	return translateRegistrationError(r.db.WithContext(ctx).Save(registration).Error)
}

func (r *RegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *RegistrationRepository) GetByStudentAndSession(ctx context.Context, studentID, sessionID uuid.UUID) (*domain.Registration, error) {
	return r.first(r.db.WithContext(ctx).Where("student_id = ? AND lab_session_id = ?", studentID, sessionID))
}

func (r *RegistrationRepository) ListByStudent(ctx context.Context, studentID uuid.UUID, activeOnly bool) ([]*domain.Registration, error) {
	query := r.db.WithContext(ctx).Where("student_id = ?", studentID)
	if activeOnly {
		query = query.Where("status IN ?", domain.ActiveStatuses)
	}
	return r.find(query.Order("registered_at DESC"))
}

func (r *RegistrationRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Registration, error) {
	return r.find(r.db.WithContext(ctx).Where("lab_session_id = ?", sessionID).Order("registered_at"))
}

func (r *RegistrationRepository) ListByStatus(ctx context.Context, sessionID uuid.UUID, status domain.RegistrationStatus) ([]*domain.Registration, error) {
	return r.find(r.db.WithContext(ctx).
		Where("lab_session_id = ? AND status = ?", sessionID, status).
		Order("registered_at"))
}

func (r *RegistrationRepository) ListWaitlisted(ctx context.Context, sessionID uuid.UUID) ([]*domain.Registration, error) {
	return r.find(r.db.WithContext(ctx).
		Where("lab_session_id = ? AND status = ?", sessionID, domain.StatusWaitlisted).
		Order("waitlist_position, registered_at"))
}

func (r *RegistrationRepository) CountActive(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Registration{}).
		Where("lab_session_id = ? AND status IN ?", sessionID, domain.ActiveStatuses).
		Count(&count).Error
	return count, err
}

func (r *RegistrationRepository) CountWaitlisted(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Registration{}).
		Where("lab_session_id = ? AND status = ?", sessionID, domain.StatusWaitlisted).
		Count(&count).Error
	return count, err
}

func (r *RegistrationRepository) first(query *gorm.DB) (*domain.Registration, error) {
	var registration domain.Registration
	if err := query.First(&registration).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &registration, nil
}

func (r *RegistrationRepository) find(query *gorm.DB) ([]*domain.Registration, error) {
	var registrations []*domain.Registration
	if err := query.Find(&registrations).Error; err != nil {
		return nil, err
	}
	return registrations, nil
}
