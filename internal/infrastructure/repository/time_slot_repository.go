package repository

import (
	"context"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const slotBatchSize = 200

var _ interfaces.TimeSlotRepository = (*TimeSlotRepository)(nil)

// TimeSlotRepository implements TimeSlotRepository using GORM. Seat counters
// only change through conditional UPDATE statements.
type TimeSlotRepository struct {
	db *gorm.DB
}

func NewTimeSlotRepository(db *gorm.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

func (r *TimeSlotRepository) CreateBatch(ctx context.Context, slots []*domain.TimeSlot) error {
	if len(slots) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(slots, slotBatchSize).Error
}

func (r *TimeSlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TimeSlot, error) {
	var slot domain.TimeSlot
	if err := r.db.WithContext(ctx).First(&slot, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &slot, nil
}

func (r *TimeSlotRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.TimeSlot, error) {
	var slots []*domain.TimeSlot
	err := r.db.WithContext(ctx).
		Where("lab_session_id = ?", sessionID).
		Order("session_date, group_number").
		Find(&slots).Error
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *TimeSlotRepository) ListAvailable(ctx context.Context, sessionID uuid.UUID) ([]*domain.TimeSlot, error) {
	var slots []*domain.TimeSlot
	err := r.available(ctx, sessionID).Find(&slots).Error
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *TimeSlotRepository) FindFirstAvailable(ctx context.Context, sessionID uuid.UUID) (*domain.TimeSlot, error) {
	return r.first(r.available(ctx, sessionID))
}

func (r *TimeSlotRepository) FindAvailableByGroup(ctx context.Context, sessionID uuid.UUID, groupNumber int) (*domain.TimeSlot, error) {
	return r.first(r.available(ctx, sessionID).Where("group_number = ?", groupNumber))
}

func (r *TimeSlotRepository) available(ctx context.Context, sessionID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("lab_session_id = ? AND active = ? AND current_count < max_students", sessionID, true).
		Order("session_date, group_number")
}

func (r *TimeSlotRepository) first(query *gorm.DB) (*domain.TimeSlot, error) {
	var slot domain.TimeSlot
	if err := query.First(&slot).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &slot, nil
}

// IncrementIfAvailable runs UPDATE ... SET current_count = current_count + 1
// WHERE current_count < max_students, so two racing callers cannot both take the last seat
func (r *TimeSlotRepository) IncrementIfAvailable(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.TimeSlot{}).
		Where("id = ? AND active = ? AND current_count < max_students", id, true).
		UpdateColumn("current_count", gorm.Expr("current_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *TimeSlotRepository) DecrementIfPositive(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.TimeSlot{}).
		Where("id = ? AND current_count > 0", id).
		UpdateColumn("current_count", gorm.Expr("current_count - 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *TimeSlotRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.db.WithContext(ctx).Model(&domain.TimeSlot{}).
		Where("id = ?", id).
		UpdateColumn("active", active).Error
}

func (r *TimeSlotRepository) UpdateMaxStudents(ctx context.Context, sessionID uuid.UUID, max int) error {
	return r.db.WithContext(ctx).Model(&domain.TimeSlot{}).
		Where("lab_session_id = ?", sessionID).
		UpdateColumn("max_students", gorm.Expr("GREATEST(?, current_count)", max)).Error
}

func (r *TimeSlotRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("lab_session_id = ?", sessionID).Delete(&domain.TimeSlot{}).Error
}

func (r *TimeSlotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.TimeSlot{}, "id = ?", id).Error
}
