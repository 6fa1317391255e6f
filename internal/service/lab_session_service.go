package service

import (
	"context"
	"fmt"
	"time"

	domain "lab-registration/internal/domain/registration"
	"lab-registration/internal/domain/user"
	interfaces "lab-registration/internal/interfaces/infrastructure"
	serviceInterfaces "lab-registration/internal/interfaces/service"
	"lab-registration/pkg/logger"

	"github.com/google/uuid"
)

const SlotSummaryTTL = 30 * time.Second

var _ serviceInterfaces.LabSessionService = (*LabSessionService)(nil)

type LabSessionService struct {
	store        interfaces.Store
	conflicts    *RoomConflictChecker
	waitlist     *WaitlistManager
	occupancy    interfaces.OccupancyReader
	cacheService interfaces.CacheService
	publisher    serviceInterfaces.NotificationPublisher
	now          func() time.Time
}

func NewLabSessionService(
	store interfaces.Store,
	conflicts *RoomConflictChecker,
	waitlist *WaitlistManager,
	occupancy interfaces.OccupancyReader,
	cacheService interfaces.CacheService,
	publisher serviceInterfaces.NotificationPublisher,
	now func() time.Time,
) *LabSessionService {
	if now == nil {
		now = time.Now
	}
	return &LabSessionService{
		store:        store,
		conflicts:    conflicts,
		waitlist:     waitlist,
		occupancy:    occupancy,
		cacheService: cacheService,
		publisher:    publisher,
		now:          now,
	}
}

func (s *LabSessionService) CreateSession(ctx context.Context, creator *user.Principal, req *serviceInterfaces.CreateSessionRequest) (*serviceInterfaces.SessionDetail, error) {
	session := &domain.LabSession{
		ID:                   uuid.New(),
		Name:                 req.Name,
		Description:          req.Description,
		Instructions:         req.Instructions,
		Room:                 req.Room,
		MaxStudentsPerSlot:   req.MaxStudentsPerSlot,
		SlotsPerDay:          req.SlotsPerDay,
		Status:               domain.SessionDraft,
		CourseID:             req.CourseID,
		CreatedBy:            creator.ID,
		OpenToAllPrograms:    req.OpenToAllPrograms,
		AllowedProgramIDs:    uniqueIDs(req.AllowedProgramIDs),
		RegistrationDeadline: req.RegistrationDeadline,
	}
	if req.Status != "" {
		session.Status = req.Status
	}
	if err := applySchedule(session, &req.StartDate, &req.EndDate, &req.StartTime, &req.EndTime, req.SessionDays); err != nil {
		return nil, err
	}
	if err := session.Schedule().Validate(); err != nil {
		return nil, err
	}

	var detail *serviceInterfaces.SessionDetail
	err := s.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		if err := s.checkCatalog(ctx, repos, session); err != nil {
			return err
		}
		if err := s.conflicts.Check(ctx, repos.Sessions, session.Room, session.Schedule(), nil); err != nil {
			return err
		}

		slots, err := domain.GenerateSlots(session.ID, session.Schedule())
		if err != nil {
			return err
		}
		if err := repos.Sessions.Create(ctx, session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		if err := repos.Slots.CreateBatch(ctx, slots); err != nil {
			return fmt.Errorf("failed to create time slots: %w", err)
		}

		detail = &serviceInterfaces.SessionDetail{
			LabSession: session,
			Slots:      slots,
			Summary:    domain.Summarize(slots),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Lab session '%s' created in room %s with %d time slots", session.Name, session.Room, len(detail.Slots))
	return detail, nil
}

func (s *LabSessionService) UpdateSession(ctx context.Context, id uuid.UUID, req *serviceInterfaces.UpdateSessionRequest) (*serviceInterfaces.SessionDetail, error) {
	var events []interfaces.NotificationEvent

	err := s.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		current, err := repos.Sessions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if current == nil {
			return domain.ErrSessionNotFound
		}
		if current.Status.Terminal() {
			return domain.NewBadRequest("cannot update a %s session", current.Status)
		}

		updated := *current
		if req.Name != nil {
			updated.Name = *req.Name
		}
		if req.Description != nil {
			updated.Description = *req.Description
		}
		if req.Instructions != nil {
			updated.Instructions = *req.Instructions
		}
		if req.Room != nil {
			updated.Room = *req.Room
		}
		if req.MaxStudentsPerSlot != nil {
			updated.MaxStudentsPerSlot = *req.MaxStudentsPerSlot
		}
		if req.SlotsPerDay != nil {
			updated.SlotsPerDay = *req.SlotsPerDay
		}
		if req.OpenToAllPrograms != nil {
			updated.OpenToAllPrograms = *req.OpenToAllPrograms
		}
		if req.AllowedProgramIDs != nil {
			updated.AllowedProgramIDs = uniqueIDs(*req.AllowedProgramIDs)
		}
		if req.RegistrationDeadline != nil {
			deadline := *req.RegistrationDeadline
			updated.RegistrationDeadline = &deadline
		}
		if err := applySchedule(&updated, req.StartDate, req.EndDate, req.StartTime, req.EndTime, req.SessionDays); err != nil {
			return err
		}

		active, err := repos.Registrations.CountActive(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to count registrations: %w", err)
		}
		if updated.TotalCapacity() < current.TotalCapacity() {
			if err := domain.CheckCapacity(updated.SlotsPerDay, updated.MaxStudentsPerSlot, active); err != nil {
				return err
			}
		}
		if err := updated.Schedule().Validate(); err != nil {
			return err
		}

		gridChanged := scheduleChanged(current, &updated)
		if gridChanged || updated.Room != current.Room {
			if err := s.conflicts.Check(ctx, repos.Sessions, updated.Room, updated.Schedule(), &id); err != nil {
				return err
			}
		}
		if req.AllowedProgramIDs != nil {
			if err := s.checkCatalog(ctx, repos, &updated); err != nil {
				return err
			}
		}

		switch {
		case gridChanged:
			if active > 0 {
				return domain.NewBadRequest("cannot change the schedule of a session with %d active registrations", active)
			}
			if err := repos.Slots.DeleteBySession(ctx, id); err != nil {
				return fmt.Errorf("failed to remove time slots: %w", err)
			}
			slots, err := domain.GenerateSlots(id, updated.Schedule())
			if err != nil {
				return err
			}
			if err := repos.Slots.CreateBatch(ctx, slots); err != nil {
				return fmt.Errorf("failed to create time slots: %w", err)
			}
		case updated.MaxStudentsPerSlot != current.MaxStudentsPerSlot:
			if err := repos.Slots.UpdateMaxStudents(ctx, id, updated.MaxStudentsPerSlot); err != nil {
				return fmt.Errorf("failed to resize time slots: %w", err)
			}
		}

		if err := repos.Sessions.Update(ctx, &updated); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}

		if updated.MaxStudentsPerSlot > current.MaxStudentsPerSlot && !gridChanged {
			promoted, err := s.waitlist.Fill(ctx, repos, id)
			if err != nil {
				return err
			}
			events = promotionEvents(s.now(), promoted...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Lab session %s updated", id)
	s.afterCommit(ctx, id, events)
	return s.GetSession(ctx, id)
}

func (s *LabSessionService) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus) (*domain.LabSession, error) {
	var session *domain.LabSession

	err := s.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		var err error
		session, err = repos.Sessions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if session == nil {
			return domain.ErrSessionNotFound
		}
		if err := session.TransitionTo(status); err != nil {
			return err
		}

		switch status {
		case domain.SessionCompleted:
			if err := s.completeRegistrations(ctx, repos, id); err != nil {
				return err
			}
		case domain.SessionCancelled:
			if err := s.cancelRegistrations(ctx, repos, id); err != nil {
				return err
			}
			if err := repos.Slots.DeleteBySession(ctx, id); err != nil {
				return fmt.Errorf("failed to remove time slots: %w", err)
			}
		}

		if err := repos.Sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("failed to update session status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Lab session '%s' status changed to %s", session.Name, status)
	s.afterCommit(ctx, id, nil)
	return session, nil
}

func (s *LabSessionService) completeRegistrations(ctx context.Context, repos interfaces.Repositories, sessionID uuid.UUID) error {
	regs, err := repos.Registrations.ListBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load registrations: %w", err)
	}
	now := s.now()
	for _, reg := range regs {
		switch reg.Status {
		case domain.StatusConfirmed:
			if err := reg.Complete(now); err != nil {
				return err
			}
		case domain.StatusPending, domain.StatusWaitlisted:
			if err := reg.Cancel(now); err != nil {
				return err
			}
			reg.AdminNotes = "lab session completed before a seat became available"
		default:
			continue
		}
		if err := repos.Registrations.Update(ctx, reg); err != nil {
			return fmt.Errorf("failed to update registration %s: %w", reg.ID, err)
		}
	}
	return nil
}

func (s *LabSessionService) cancelRegistrations(ctx context.Context, repos interfaces.Repositories, sessionID uuid.UUID) error {
	regs, err := repos.Registrations.ListBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load registrations: %w", err)
	}
	now := s.now()
	for _, reg := range regs {
		if !reg.IsActive() {
			continue
		}
		if err := s.waitlist.allocator.Release(ctx, repos, reg); err != nil {
			return err
		}
		if err := reg.Cancel(now); err != nil {
			return err
		}
		reg.AdminNotes = "lab session cancelled"
		if err := repos.Registrations.Update(ctx, reg); err != nil {
			return fmt.Errorf("failed to cancel registration %s: %w", reg.ID, err)
		}
	}
	return nil
}

func (s *LabSessionService) DeleteSession(ctx context.Context, id uuid.UUID) error {
	err := s.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		session, err := repos.Sessions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if session == nil {
			return domain.ErrSessionNotFound
		}
		active, err := repos.Registrations.CountActive(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to count registrations: %w", err)
		}
		if err := session.Deletable(active); err != nil {
			return err
		}
		if err := repos.Slots.DeleteBySession(ctx, id); err != nil {
			return fmt.Errorf("failed to remove time slots: %w", err)
		}
		return repos.Sessions.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	logger.Info("Lab session %s deleted", id)
	invalidateSession(ctx, s.cacheService, id)
	return nil
}

func (s *LabSessionService) GetSession(ctx context.Context, id uuid.UUID) (*serviceInterfaces.SessionDetail, error) {
	repos := s.store.Repos()
	session, err := s.requireSession(ctx, repos, id)
	if err != nil {
		return nil, err
	}
	slots, err := repos.Slots.ListBySession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load time slots: %w", err)
	}
	active, err := repos.Registrations.CountActive(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count registrations: %w", err)
	}
	return &serviceInterfaces.SessionDetail{
		LabSession:          session,
		Slots:               slots,
		ActiveRegistrations: active,
		Summary:             domain.Summarize(slots),
	}, nil
}

func (s *LabSessionService) ListSessions(ctx context.Context, status *domain.SessionStatus) ([]*domain.LabSession, error) {
	return s.store.Repos().Sessions.List(ctx, domain.SessionFilter{Status: status})
}

// ListAvailable returns open sessions that have not ended, optionally narrowed
// to a course or to sessions a program may join
func (s *LabSessionService) ListAvailable(ctx context.Context, courseID, programID *uuid.UUID) ([]*domain.LabSession, error) {
	open := domain.SessionOpen
	today := domain.DateOf(s.now())
	return s.store.Repos().Sessions.List(ctx, domain.SessionFilter{
		Status:        &open,
		CourseID:      courseID,
		ProgramID:     programID,
		EndsOnOrAfter: &today,
	})
}

func (s *LabSessionService) ListSlots(ctx context.Context, sessionID uuid.UUID) ([]*domain.TimeSlot, error) {
	repos := s.store.Repos()
	if _, err := s.requireSession(ctx, repos, sessionID); err != nil {
		return nil, err
	}
	return repos.Slots.ListBySession(ctx, sessionID)
}

func (s *LabSessionService) ListAvailableSlots(ctx context.Context, sessionID uuid.UUID) ([]*domain.TimeSlot, error) {
	repos := s.store.Repos()
	if _, err := s.requireSession(ctx, repos, sessionID); err != nil {
		return nil, err
	}
	return repos.Slots.ListAvailable(ctx, sessionID)
}

func (s *LabSessionService) SlotSummary(ctx context.Context, sessionID uuid.UUID) (*domain.SlotSummary, error) {
	if s.cacheService != nil {
		cached, err := s.cacheService.GetSlotSummary(ctx, sessionID)
		if err != nil {
			logger.Warn("Failed to read slot summary from cache: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	slots, err := s.ListSlots(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	summary := domain.Summarize(slots)

	if s.cacheService != nil {
		if err := s.cacheService.SetSlotSummary(ctx, sessionID, &summary, SlotSummaryTTL); err != nil {
			logger.Warn("Failed to cache slot summary: %v", err)
		}
	}
	return &summary, nil
}

// SetSlotActive hides or shows a slot. Re-activation hands freed seats to the waitlist.
func (s *LabSessionService) SetSlotActive(ctx context.Context, slotID uuid.UUID, active bool) (*domain.TimeSlot, error) {
	var slot *domain.TimeSlot
	var events []interfaces.NotificationEvent

	err := s.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		var err error
		slot, err = repos.Slots.GetByID(ctx, slotID)
		if err != nil {
			return fmt.Errorf("failed to load slot: %w", err)
		}
		if slot == nil {
			return domain.ErrSlotNotFound
		}
		if _, err := repos.Sessions.GetByIDForUpdate(ctx, slot.LabSessionID); err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}
		if slot, err = repos.Slots.GetByID(ctx, slotID); err != nil {
			return fmt.Errorf("failed to load slot: %w", err)
		}
		if slot == nil {
			return domain.ErrSlotNotFound
		}
		if slot.Active == active {
			return nil
		}
		if err := repos.Slots.SetActive(ctx, slotID, active); err != nil {
			return fmt.Errorf("failed to update slot: %w", err)
		}
		slot.Active = active

		if active {
			promoted, err := s.waitlist.Fill(ctx, repos, slot.LabSessionID)
			if err != nil {
				return err
			}
			events = promotionEvents(s.now(), promoted...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Time slot %s active=%t", slotID, active)
	s.afterCommit(ctx, slot.LabSessionID, events)
	return slot, nil
}

func (s *LabSessionService) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	var sessionID uuid.UUID
	err := s.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		slot, err := repos.Slots.GetByID(ctx, slotID)
		if err != nil {
			return fmt.Errorf("failed to load slot: %w", err)
		}
		if slot == nil {
			return domain.ErrSlotNotFound
		}
		// an inactive slot cannot take a seat through the conditional counter
		if _, err := repos.Sessions.GetByIDForUpdate(ctx, slot.LabSessionID); err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}
		if err := repos.Slots.SetActive(ctx, slotID, false); err != nil {
			return fmt.Errorf("failed to update slot: %w", err)
		}
		if slot, err = repos.Slots.GetByID(ctx, slotID); err != nil {
			return fmt.Errorf("failed to load slot: %w", err)
		}
		if slot == nil {
			return domain.ErrSlotNotFound
		}
		if slot.CurrentCount > 0 {
			return domain.ErrSlotHasRegistrations
		}
		sessionID = slot.LabSessionID
		return repos.Slots.Delete(ctx, slotID)
	})
	if err != nil {
		return err
	}
	invalidateSession(ctx, s.cacheService, sessionID)
	return nil
}

func (s *LabSessionService) Occupancy(ctx context.Context, sessionID uuid.UUID) ([]interfaces.OccupancyRow, error) {
	if _, err := s.requireSession(ctx, s.store.Repos(), sessionID); err != nil {
		return nil, err
	}
	return s.occupancy.SessionOccupancy(ctx, sessionID)
}

// CloseExpired moves OPEN sessions whose end date has passed to CLOSED
func (s *LabSessionService) CloseExpired(ctx context.Context) (int, error) {
	today := domain.DateOf(s.now())
	expired, err := s.store.Repos().Sessions.FindExpiredOpen(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("failed to find expired sessions: %w", err)
	}

	closed := 0
	for _, candidate := range expired {
		_, err := s.UpdateStatus(ctx, candidate.ID, domain.SessionClosed)
		if err != nil {
			// another sweeper or an admin got there first
			logger.Warn("Skipping session %s during sweep: %v", candidate.ID, err)
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *LabSessionService) requireSession(ctx context.Context, repos interfaces.Repositories, id uuid.UUID) (*domain.LabSession, error) {
	session, err := repos.Sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *LabSessionService) checkCatalog(ctx context.Context, repos interfaces.Repositories, session *domain.LabSession) error {
	course, err := repos.Catalog.GetCourse(ctx, session.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course: %w", err)
	}
	if course == nil {
		return domain.ErrCourseNotFound
	}
	if len(session.AllowedProgramIDs) == 0 {
		return nil
	}
	programs, err := repos.Catalog.GetPrograms(ctx, session.AllowedProgramIDs)
	if err != nil {
		return fmt.Errorf("failed to load programs: %w", err)
	}
	if len(programs) != len(session.AllowedProgramIDs) {
		return domain.ErrProgramNotFound
	}
	return nil
}

func (s *LabSessionService) afterCommit(ctx context.Context, sessionID uuid.UUID, events []interfaces.NotificationEvent) {
	invalidateSession(ctx, s.cacheService, sessionID)
	if len(events) > 0 && s.publisher != nil {
		s.publisher.Publish(ctx, events...)
	}
}

// applySchedule parses the schedule fields that are present onto session
func applySchedule(session *domain.LabSession, startDate, endDate, startTime, endTime *string, days []string) error {
	if startDate != nil {
		d, err := domain.ParseDate(*startDate)
		if err != nil {
			return domain.NewBadRequest("%v", err)
		}
		session.StartDate = d
	}
	if endDate != nil {
		d, err := domain.ParseDate(*endDate)
		if err != nil {
			return domain.NewBadRequest("%v", err)
		}
		session.EndDate = d
	}
	if startTime != nil {
		t, err := domain.ParseTimeOfDay(*startTime)
		if err != nil {
			return domain.NewBadRequest("%v", err)
		}
		session.StartTime = t
	}
	if endTime != nil {
		t, err := domain.ParseTimeOfDay(*endTime)
		if err != nil {
			return domain.NewBadRequest("%v", err)
		}
		session.EndTime = t
	}
	if days != nil {
		parsed, err := domain.ParseWeekdays(days)
		if err != nil {
			return domain.NewBadRequest("%v", err)
		}
		session.SessionDays = parsed
	}
	return nil
}

func scheduleChanged(a, b *domain.LabSession) bool {
	return !domain.DateOf(a.StartDate).Equal(domain.DateOf(b.StartDate)) ||
		!domain.DateOf(a.EndDate).Equal(domain.DateOf(b.EndDate)) ||
		a.StartTime != b.StartTime ||
		a.EndTime != b.EndTime ||
		a.SlotsPerDay != b.SlotsPerDay ||
		!a.SessionDays.Equal(b.SessionDays)
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
