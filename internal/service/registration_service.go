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

var _ serviceInterfaces.RegistrationService = (*RegistrationService)(nil)

type RegisterRequest = serviceInterfaces.RegisterRequest
type RegistrationResult = serviceInterfaces.RegistrationResult

type RegistrationService struct {
	store        interfaces.Store
	allocator    *SlotAllocator
	waitlist     *WaitlistManager
	publisher    serviceInterfaces.NotificationPublisher
	cacheService interfaces.CacheService
	now          func() time.Time
}

func NewRegistrationService(
	store interfaces.Store,
	allocator *SlotAllocator,
	waitlist *WaitlistManager,
	publisher serviceInterfaces.NotificationPublisher,
	cacheService interfaces.CacheService,
	now func() time.Time,
) *RegistrationService {
	if now == nil {
		now = time.Now
	}
	return &RegistrationService{
		store:        store,
		allocator:    allocator,
		waitlist:     waitlist,
		publisher:    publisher,
		cacheService: cacheService,
		now:          now,
	}
}

func (s *RegistrationService) Register(ctx context.Context, student *user.Principal, req *RegisterRequest) (*RegistrationResult, error) {
	logger.Info("Processing registration for student %s in session %s", student.ID, req.SessionID)

	var result *RegistrationResult
	var events []interfaces.NotificationEvent

	err := s.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		now := s.now()

		session, err := repos.Sessions.GetByID(ctx, req.SessionID)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if session == nil {
			return domain.ErrSessionNotFound
		}
		if session.Status != domain.SessionOpen {
			return domain.ErrSessionNotOpen
		}
		if session.RegistrationDeadline != nil && now.After(*session.RegistrationDeadline) {
			return domain.ErrDeadlinePassed
		}

		existing, err := repos.Registrations.GetByStudentAndSession(ctx, student.ID, session.ID)
		if err != nil {
			return fmt.Errorf("failed to check existing registration: %w", err)
		}
		if existing != nil && existing.Status == domain.StatusCancelled {
			// reactivation updates a row another request may also be reactivating
			if _, err := repos.Sessions.GetByIDForUpdate(ctx, session.ID); err != nil {
				return fmt.Errorf("failed to lock session: %w", err)
			}
			if existing, err = repos.Registrations.GetByID(ctx, existing.ID); err != nil {
				return fmt.Errorf("failed to check existing registration: %w", err)
			}
		}
		if existing != nil && existing.Status != domain.StatusCancelled {
			return domain.ErrAlreadyRegistered
		}
		if !domain.ProgramEligible(session, student.ProgramID) {
			return domain.ErrProgramNotEligible
		}

		if err := repos.Students.Upsert(ctx, &domain.Student{
			StudentID: student.ID,
			Email:     student.Email,
			FullName:  student.FullName,
			ProgramID: student.ProgramID,
		}); err != nil {
			return fmt.Errorf("failed to record student: %w", err)
		}

		reg := existing
		if reg != nil {
			reg.Reactivate(req.Notes, session.TotalSessions(), now)
		} else {
			reg = &domain.Registration{
				ID:            uuid.New(),
				StudentID:     student.ID,
				LabSessionID:  session.ID,
				Status:        domain.StatusPending,
				StudentNotes:  req.Notes,
				TotalSessions: session.TotalSessions(),
				RegisteredAt:  now,
			}
		}

		position, err := s.place(ctx, repos, reg, req.TimeSlotID)
		if err != nil {
			return err
		}

		if existing != nil {
			err = repos.Registrations.Update(ctx, reg)
		} else {
			err = repos.Registrations.Create(ctx, reg)
		}
		if err != nil {
			return fmt.Errorf("failed to save registration: %w", err)
		}

		result = &RegistrationResult{Registration: reg}
		if reg.Status == domain.StatusConfirmed {
			result.Message = "Successfully registered for lab session"
			events = append(events, interfaces.NotificationEvent{
				Type:      interfaces.EventRegistrationConfirmed,
				StudentID: reg.StudentID,
				SessionID: reg.LabSessionID,
				Timestamp: now,
			})
		} else {
			result.Message = fmt.Sprintf("Lab session is full, added to waitlist at position %d", position)
			events = append(events, interfaces.NotificationEvent{
				Type:      interfaces.EventRegistrationWaitlisted,
				StudentID: reg.StudentID,
				SessionID: reg.LabSessionID,
				Position:  position,
				Timestamp: now,
			})
		}
		return nil
	})
	if err != nil {
		logger.Warn("Registration for student %s in session %s rejected: %v", student.ID, req.SessionID, err)
		return nil, err
	}

	logger.Info("Registration %s for student %s is %s", result.Registration.ID, student.ID, result.Registration.Status)
	s.afterCommit(ctx, req.SessionID, events)
	return result, nil
}

// place confirms reg into the requested or first available slot, or waitlists it.
// It returns the waitlist position, zero when confirmed.
func (s *RegistrationService) place(ctx context.Context, repos interfaces.Repositories, reg *domain.Registration, requested *uuid.UUID) (int, error) {
	var assigned bool
	var err error

	if requested != nil {
		slot, err := repos.Slots.GetByID(ctx, *requested)
		if err != nil {
			return 0, fmt.Errorf("failed to load slot: %w", err)
		}
		if slot == nil {
			return 0, domain.ErrSlotNotFound
		}
		if slot.LabSessionID != reg.LabSessionID {
			return 0, domain.ErrSlotNotInSession
		}
		assigned, err = s.allocator.Assign(ctx, repos, reg, slot)
		if err != nil {
			return 0, err
		}
	} else {
		assigned, err = s.allocator.AssignFirstAvailable(ctx, repos, reg)
		if err != nil {
			return 0, err
		}
	}
	if assigned {
		return 0, nil
	}

	// waitlist writers are serialized on the session row
	if _, err := repos.Sessions.GetByIDForUpdate(ctx, reg.LabSessionID); err != nil {
		return 0, fmt.Errorf("failed to lock session: %w", err)
	}
	if requested == nil {
		assigned, err = s.allocator.AssignFirstAvailable(ctx, repos, reg)
		if err != nil {
			return 0, err
		}
		if assigned {
			return 0, nil
		}
	}
	return s.waitlist.Enqueue(ctx, repos, reg)
}

func (s *RegistrationService) Cancel(ctx context.Context, registrationID uuid.UUID, requester *user.Principal) (*domain.Registration, error) {
	var reg *domain.Registration
	var events []interfaces.NotificationEvent

	err := s.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		var err error
		reg, err = s.lockRegistration(ctx, repos, registrationID)
		if err != nil {
			return err
		}
		if reg.StudentID != requester.ID {
			return domain.ErrForbidden
		}
		switch reg.Status {
		case domain.StatusCancelled:
			return domain.ErrAlreadyCancelled
		case domain.StatusCompleted:
			return domain.ErrCannotCancelCompleted
		}

		events, err = s.cancelLocked(ctx, repos, reg, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Registration %s cancelled by student %s", reg.ID, requester.ID)
	s.afterCommit(ctx, reg.LabSessionID, events)
	return reg, nil
}

// lockRegistration takes the session row lock of the registration and reads the
// registration again under it. Every writer of a registration row holds that
// lock, so the returned state cannot change before the transaction ends.
func (s *RegistrationService) lockRegistration(ctx context.Context, repos interfaces.Repositories, id uuid.UUID) (*domain.Registration, error) {
	reg, err := repos.Registrations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load registration: %w", err)
	}
	if reg == nil {
		return nil, domain.ErrRegistrationNotFound
	}
	if _, err := repos.Sessions.GetByIDForUpdate(ctx, reg.LabSessionID); err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	reg, err = repos.Registrations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load registration: %w", err)
	}
	if reg == nil {
		return nil, domain.ErrRegistrationNotFound
	}
	return reg, nil
}

// cancelLocked releases the seat, cancels reg and hands the seat to the waitlist
// head. The caller holds the session row lock.
func (s *RegistrationService) cancelLocked(ctx context.Context, repos interfaces.Repositories, reg *domain.Registration, adminNotes string) ([]interfaces.NotificationEvent, error) {
	wasWaitlisted := reg.Status == domain.StatusWaitlisted
	if err := s.allocator.Release(ctx, repos, reg); err != nil {
		return nil, err
	}
	if err := reg.Cancel(s.now()); err != nil {
		return nil, err
	}
	if adminNotes != "" {
		reg.AdminNotes = adminNotes
	}
	if err := repos.Registrations.Update(ctx, reg); err != nil {
		return nil, fmt.Errorf("failed to cancel registration: %w", err)
	}

	if wasWaitlisted {
		return nil, s.waitlist.Compact(ctx, repos, reg.LabSessionID)
	}

	promoted, err := s.waitlist.Promote(ctx, repos, reg.LabSessionID)
	if err != nil {
		return nil, err
	}
	return promotionEvents(s.now(), promoted), nil
}

func (s *RegistrationService) ChangeSlot(ctx context.Context, registrationID uuid.UUID, groupNumber int) (*domain.Registration, error) {
	var reg *domain.Registration
	var events []interfaces.NotificationEvent

	err := s.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		var err error
		reg, err = s.lockRegistration(ctx, repos, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != domain.StatusConfirmed {
			return domain.ErrSlotNotConfirmed
		}

		target, err := repos.Slots.FindAvailableByGroup(ctx, reg.LabSessionID, groupNumber)
		if err != nil {
			return fmt.Errorf("failed to find slot: %w", err)
		}
		if target == nil {
			return domain.NewBadRequest("no available slot with group number %d", groupNumber)
		}
		if reg.TimeSlotID != nil && *reg.TimeSlotID == target.ID {
			return nil
		}

		moved, err := s.allocator.Move(ctx, repos, reg, target)
		if err != nil {
			return err
		}
		if !moved {
			return domain.NewBadRequest("no available slot with group number %d", groupNumber)
		}
		if err := repos.Registrations.Update(ctx, reg); err != nil {
			return fmt.Errorf("failed to save registration: %w", err)
		}

		promoted, err := s.waitlist.Promote(ctx, repos, reg.LabSessionID)
		if err != nil {
			return err
		}
		events = promotionEvents(s.now(), promoted)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Registration %s moved to slot group %d", reg.ID, groupNumber)
	s.afterCommit(ctx, reg.LabSessionID, events)
	return reg, nil
}

func (s *RegistrationService) UpdateStatus(ctx context.Context, registrationID uuid.UUID, req *serviceInterfaces.UpdateStatusRequest) (*domain.Registration, error) {
	var reg *domain.Registration
	var events []interfaces.NotificationEvent

	err := s.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		var err error
		reg, err = s.lockRegistration(ctx, repos, registrationID)
		if err != nil {
			return err
		}
		if !reg.IsActive() {
			return &domain.InvalidTransitionError{
				From:    string(reg.Status),
				To:      string(req.Status),
				Message: "cannot change the status of a cancelled or completed registration",
			}
		}

		notes := ""
		if req.AdminNotes != nil {
			notes = *req.AdminNotes
		}

		switch req.Status {
		case domain.StatusCancelled:
			events, err = s.cancelLocked(ctx, repos, reg, notes)
			return err
		case domain.StatusConfirmed:
			if reg.TimeSlotID == nil {
				return domain.NewBadRequest("cannot confirm registration without assigned time slot")
			}
			if reg.Status != domain.StatusConfirmed {
				reg.Confirm(*reg.TimeSlotID, s.now())
			}
		case domain.StatusCompleted:
			if reg.Status != domain.StatusConfirmed {
				return &domain.InvalidTransitionError{From: string(reg.Status), To: string(req.Status)}
			}
			if err := reg.Complete(s.now()); err != nil {
				return err
			}
		default:
			return domain.NewBadRequest("unsupported registration status %q", req.Status)
		}

		if req.AdminNotes != nil {
			reg.AdminNotes = notes
		}
		if err := repos.Registrations.Update(ctx, reg); err != nil {
			return fmt.Errorf("failed to save registration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Registration %s status set to %s", reg.ID, reg.Status)
	s.afterCommit(ctx, reg.LabSessionID, events)
	return reg, nil
}

func (s *RegistrationService) ListByStudent(ctx context.Context, studentID uuid.UUID, activeOnly bool) ([]*domain.Registration, error) {
	return s.store.Repos().Registrations.ListByStudent(ctx, studentID, activeOnly)
}

func (s *RegistrationService) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Registration, error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.Repos().Registrations.ListBySession(ctx, sessionID)
}

func (s *RegistrationService) Waitlist(ctx context.Context, sessionID uuid.UUID) ([]*domain.Registration, error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.Repos().Registrations.ListWaitlisted(ctx, sessionID)
}

func (s *RegistrationService) requireSession(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.store.Repos().Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *RegistrationService) afterCommit(ctx context.Context, sessionID uuid.UUID, events []interfaces.NotificationEvent) {
	invalidateSession(ctx, s.cacheService, sessionID)
	if len(events) > 0 && s.publisher != nil {
		s.publisher.Publish(ctx, events...)
	}
}

func promotionEvents(now time.Time, promoted ...*domain.Registration) []interfaces.NotificationEvent {
	var events []interfaces.NotificationEvent
	for _, reg := range promoted {
		if reg == nil {
			continue
		}
		events = append(events, interfaces.NotificationEvent{
			Type:      interfaces.EventWaitlistPromoted,
			StudentID: reg.StudentID,
			SessionID: reg.LabSessionID,
			Timestamp: now,
		})
	}
	return events
}

func invalidateSession(ctx context.Context, cacheService interfaces.CacheService, sessionID uuid.UUID) {
	if cacheService == nil {
		return
	}
	if err := cacheService.InvalidateSession(ctx, sessionID); err != nil {
		logger.Warn("Failed to invalidate cache for session %s: %v", sessionID, err)
	}
}
