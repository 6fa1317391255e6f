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

var _ serviceInterfaces.AttendanceService = (*AttendanceService)(nil)

type MarkAttendanceRequest = serviceInterfaces.MarkAttendanceRequest

type AttendanceService struct {
	store interfaces.Store
	now   func() time.Time
}

func NewAttendanceService(store interfaces.Store, now func() time.Time) *AttendanceService {
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{store: store, now: now}
}

// MarkAttendance records presence for a batch of registrations on one meeting
// date. Marking the same registration and date again overwrites the record.
// The registration counters are refreshed from the stored records.
func (s *AttendanceService) MarkAttendance(ctx context.Context, marker *user.Principal, req *MarkAttendanceRequest) ([]*domain.Attendance, error) {
	date, err := domain.ParseDate(req.SessionDate)
	if err != nil {
		return nil, domain.ErrNotSessionDate
	}

	var marked []*domain.Attendance
	err = s.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		session, err := repos.Sessions.GetByIDForUpdate(ctx, req.SessionID)
		if err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}
		if session == nil {
			return domain.ErrSessionNotFound
		}
		if !session.MeetsOn(date) {
			return domain.ErrNotSessionDate
		}

		now := s.now()
		for _, record := range req.Records {
			reg, err := repos.Registrations.GetByID(ctx, record.RegistrationID)
			if err != nil {
				return fmt.Errorf("failed to load registration: %w", err)
			}
			if reg == nil {
				return domain.ErrRegistrationNotFound
			}
			if reg.LabSessionID != session.ID {
				return domain.ErrRegistrationNotInSession
			}
			if !reg.AttendanceRecordable() {
				return domain.ErrAttendanceNotAllowed
			}

			attendance, err := s.upsert(ctx, repos, reg.ID, date, marker, *record.Present, record.Notes, now)
			if err != nil {
				return err
			}

			present, recorded, err := repos.Attendance.CountByRegistration(ctx, reg.ID)
			if err != nil {
				return fmt.Errorf("failed to count attendance: %w", err)
			}
			reg.RecordAttendance(int(present), int(recorded))
			if err := repos.Registrations.Update(ctx, reg); err != nil {
				return fmt.Errorf("failed to update registration: %w", err)
			}
			marked = append(marked, attendance)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Attendance for %d registrations in session %s on %s marked by %s",
		len(marked), req.SessionID, date.Format(domain.DateLayout), marker.ID)
	return marked, nil
}

func (s *AttendanceService) upsert(
	ctx context.Context,
	repos interfaces.Repositories,
	registrationID uuid.UUID,
	date time.Time,
	marker *user.Principal,
	present bool,
	notes string,
	now time.Time,
) (*domain.Attendance, error) {
	attendance, err := repos.Attendance.GetByRegistrationAndDate(ctx, registrationID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance: %w", err)
	}
	create := attendance == nil
	if create {
		attendance = &domain.Attendance{
			ID:             uuid.New(),
			RegistrationID: registrationID,
			SessionDate:    date,
		}
	}

	markedBy := marker.ID
	attendance.Present = present
	attendance.Notes = notes
	attendance.MarkedBy = &markedBy
	attendance.CheckInTime = nil
	if present {
		checkIn := now
		attendance.CheckInTime = &checkIn
	}

	if create {
		err = repos.Attendance.Create(ctx, attendance)
	} else {
		err = repos.Attendance.Update(ctx, attendance)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save attendance: %w", err)
	}
	return attendance, nil
}

func (s *AttendanceService) ListByRegistration(ctx context.Context, registrationID uuid.UUID, requester *user.Principal) ([]*domain.Attendance, error) {
	repos := s.store.Repos()
	reg, err := repos.Registrations.GetByID(ctx, registrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load registration: %w", err)
	}
	if reg == nil {
		return nil, domain.ErrRegistrationNotFound
	}
	if !requester.IsAdmin() && reg.StudentID != requester.ID {
		return nil, domain.ErrAttendanceForbidden
	}
	return repos.Attendance.ListByRegistration(ctx, registrationID)
}

func (s *AttendanceService) ListBySession(ctx context.Context, sessionID uuid.UUID, date *time.Time) ([]*domain.Attendance, error) {
	repos := s.store.Repos()
	session, err := repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return repos.Attendance.ListBySession(ctx, sessionID, date)
}
