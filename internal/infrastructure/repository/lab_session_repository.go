package repository

import (
	"context"
	"time"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ interfaces.LabSessionRepository = (*LabSessionRepository)(nil)

// LabSessionRepository implements LabSessionRepository using GORM
type LabSessionRepository struct {
	db *gorm.DB
}

// NewLabSessionRepository creates a new GORM lab session repository
func NewLabSessionRepository(db *gorm.DB) *LabSessionRepository {
	return &LabSessionRepository{db: db}
}

// Create creates a session and its program allow-list
func (r *LabSessionRepository) Create(ctx context.Context, session *domain.LabSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return err
	}
	return r.savePrograms(ctx, session)
}

// Update overwrites the session row and replaces its program allow-list
func (r *LabSessionRepository) Update(ctx context.Context, session *domain.LabSession) error {
	if err := r.db.WithContext(ctx).Save(session).Error; err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).
		Where("lab_session_id = ?", session.ID).
		Delete(&domain.LabSessionProgram{}).Error; err != nil {
		return err
	}
	return r.savePrograms(ctx, session)
}

// Delete removes the session with its program links and remaining registrations
func (r *LabSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("lab_session_id = ?", id).Delete(&domain.LabSessionProgram{}).Error; err != nil {
		return err
	}
	if err := db.Where("lab_session_id = ?", id).Delete(&domain.Registration{}).Error; err != nil {
		return err
	}
	return db.Delete(&domain.LabSession{}, "id = ?", id).Error
}

func (r *LabSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LabSession, error) {
	return r.get(ctx, r.db.WithContext(ctx), id)
}

// GetByIDForUpdate takes a row lock with SELECT ... FOR UPDATE
func (r *LabSessionRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.LabSession, error) {
	return r.get(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// LockRoom takes a transaction-scoped advisory lock keyed on the room name
func (r *LabSessionRepository) LockRoom(ctx context.Context, room string) error {
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "lab_room:"+room).Error
}

func (r *LabSessionRepository) get(ctx context.Context, query *gorm.DB, id uuid.UUID) (*domain.LabSession, error) {
	var session domain.LabSession
	if err := query.First(&session, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadPrograms(ctx, []*domain.LabSession{&session}); err != nil {
		return nil, err
	}
	return &session, nil
}

// List retrieves sessions matching the filter ordered by start date and time
func (r *LabSessionRepository) List(ctx context.Context, filter domain.SessionFilter) ([]*domain.LabSession, error) {
	query := r.db.WithContext(ctx).Model(&domain.LabSession{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}
	if filter.EndsOnOrAfter != nil {
		query = query.Where("end_date >= ?", *filter.EndsOnOrAfter)
	}
	if filter.ProgramID != nil {
		allowed := r.db.Model(&domain.LabSessionProgram{}).
			Select("lab_session_id").
			Where("program_id = ?", *filter.ProgramID)
		query = query.Where("open_to_all_programs = ? OR id IN (?)", true, allowed)
	}

	var sessions []*domain.LabSession
	if err := query.Order("start_date, start_time").Find(&sessions).Error; err != nil {
		return nil, err
	}
	if err := r.loadPrograms(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// FindByRoomInRange retrieves non-cancelled sessions in room whose date range intersects [from, to]
func (r *LabSessionRepository) FindByRoomInRange(ctx context.Context, room string, from, to time.Time) ([]*domain.LabSession, error) {
	var sessions []*domain.LabSession
	err := r.db.WithContext(ctx).
		Where("room = ? AND start_date <= ? AND end_date >= ? AND status <> ?", room, to, from, domain.SessionCancelled).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// FindExpiredOpen retrieves OPEN sessions that ended before today
func (r *LabSessionRepository) FindExpiredOpen(ctx context.Context, today time.Time) ([]*domain.LabSession, error) {
	var sessions []*domain.LabSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_date < ?", domain.SessionOpen, today).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *LabSessionRepository) savePrograms(ctx context.Context, session *domain.LabSession) error {
	if len(session.AllowedProgramIDs) == 0 {
		return nil
	}
	links := make([]domain.LabSessionProgram, 0, len(session.AllowedProgramIDs))
	for _, programID := range session.AllowedProgramIDs {
		links = append(links, domain.LabSessionProgram{LabSessionID: session.ID, ProgramID: programID})
	}
	return r.db.WithContext(ctx).Create(&links).Error
}

func (r *LabSessionRepository) loadPrograms(ctx context.Context, sessions []*domain.LabSession) error {
	if len(sessions) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*domain.LabSession, len(sessions))
	ids := make([]uuid.UUID, 0, len(sessions))
	for _, s := range sessions {
		s.AllowedProgramIDs = []uuid.UUID{}
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	var links []domain.LabSessionProgram
	if err := r.db.WithContext(ctx).Where("lab_session_id IN ?", ids).Find(&links).Error; err != nil {
		return err
	}
	for _, link := range links {
		s := byID[link.LabSessionID]
		s.AllowedProgramIDs = append(s.AllowedProgramIDs, link.ProgramID)
	}
	return nil
}
