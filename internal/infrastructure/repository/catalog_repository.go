package repository

import (
	"context"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var _ interfaces.CatalogRepository = (*CatalogRepository)(nil)

// CatalogRepository reads courses and programs owned by the catalog service
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetCourse(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	var course domain.Course
	err := r.db.WithContext(ctx).First(&course, "course_id = ?", id).Error
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &course, nil
}

func (r *CatalogRepository) GetPrograms(ctx context.Context, ids []uuid.UUID) ([]*domain.Program, error) {
	var programs []*domain.Program
	if len(ids) == 0 {
		return programs, nil
	}
	if err := r.db.WithContext(ctx).Where("program_id IN ?", ids).Find(&programs).Error; err != nil {
		return nil, err
	}
	return programs, nil
}
