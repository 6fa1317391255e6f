package service

import (
	"errors"
	"testing"
	"time"

	domain "lab-registration/internal/domain/registration"
	serviceInterfaces "lab-registration/internal/interfaces/service"

	"github.com/google/uuid"
)

func markRequest(sessionID uuid.UUID, date string, present bool, regIDs ...uuid.UUID) *MarkAttendanceRequest {
	req := &MarkAttendanceRequest{SessionID: sessionID, SessionDate: date}
	for _, id := range regIDs {
		p := present
		req.Records = append(req.Records, serviceInterfaces.AttendanceRecord{RegistrationID: id, Present: &p})
	}
	return req
}

func TestAttendanceService_MarkAttendance_RefreshesCounters(t *testing.T) {
	f := newFixture(t)
	req := f.sessionRequest(1, 2)
	req.EndDate = "2026-03-16"
	session := f.createSession(t, req)

	alice := f.student("alice")
	reg := f.register(t, alice, session.ID)

	marked, err := f.attendance.MarkAttendance(f.ctx, f.admin, markRequest(session.ID, testMonday, true, reg.ID))
	if err != nil {
		t.Fatalf("Expected no error marking attendance, got %v", err)
	}
	if len(marked) != 1 || !marked[0].Present || marked[0].CheckInTime == nil {
		t.Fatalf("Expected one present record with a check-in time, got %+v", marked)
	}
	if marked[0].MarkedBy == nil || *marked[0].MarkedBy != f.admin.ID {
		t.Errorf("Expected marked_by %s, got %v", f.admin.ID, marked[0].MarkedBy)
	}

	if _, err := f.attendance.MarkAttendance(f.ctx, f.admin, markRequest(session.ID, "2026-03-16", false, reg.ID)); err != nil {
		t.Fatalf("Expected no error marking absence, got %v", err)
	}
	stored := f.registration(t, reg.ID)
	if stored.AttendedSessions != 1 {
		t.Errorf("Expected 1 attended session, got %d", stored.AttendedSessions)
	}
	if stored.TotalSessions != 2 {
		t.Errorf("Expected 2 total sessions, got %d", stored.TotalSessions)
	}

	// marking the same date again overwrites the record
	again, err := f.attendance.MarkAttendance(f.ctx, f.admin, markRequest(session.ID, "2026-03-16", true, reg.ID))
	if err != nil {
		t.Fatalf("Expected no error re-marking, got %v", err)
	}
	if again[0].CheckInTime == nil {
		t.Error("Expected a check-in time once present")
	}
	records, err := f.attendance.ListByRegistration(f.ctx, reg.ID, alice)
	if err != nil {
		t.Fatalf("Expected no error listing attendance, got %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if !records[0].SessionDate.Before(records[1].SessionDate) {
		t.Errorf("Expected records ordered by date, got %s then %s", records[0].SessionDate, records[1].SessionDate)
	}
	if got := f.registration(t, reg.ID).AttendedSessions; got != 2 {
		t.Errorf("Expected 2 attended sessions, got %d", got)
	}

	date := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	onDate, err := f.attendance.ListBySession(f.ctx, session.ID, &date)
	if err != nil {
		t.Fatalf("Expected no error listing by session, got %v", err)
	}
	if len(onDate) != 1 {
		t.Errorf("Expected 1 record on %s, got %d", date.Format(domain.DateLayout), len(onDate))
	}
}

func TestAttendanceService_MarkAttendance_Rejections(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(1, 1))
	other := f.sessionRequest(1, 1)
	other.Room = "R2"
	otherSession := f.createSession(t, other)

	confirmed := f.register(t, f.student("alice"), session.ID)
	waitlisted := f.register(t, f.student("bob"), session.ID)
	elsewhere := f.register(t, f.student("carol"), otherSession.ID)

	tests := []struct {
		name     string
		req      *MarkAttendanceRequest
		expected error
	}{
		{"unknown session", markRequest(uuid.New(), testMonday, true, confirmed.ID), domain.ErrSessionNotFound},
		{"day the session does not meet", markRequest(session.ID, "2026-03-10", true, confirmed.ID), domain.ErrNotSessionDate},
		{"date outside the session", markRequest(session.ID, "2026-03-16", true, confirmed.ID), domain.ErrNotSessionDate},
		{"malformed date", markRequest(session.ID, "09/03/2026", true, confirmed.ID), domain.ErrNotSessionDate},
		{"unknown registration", markRequest(session.ID, testMonday, true, uuid.New()), domain.ErrRegistrationNotFound},
		{"registration of another session", markRequest(session.ID, testMonday, true, elsewhere.ID), domain.ErrRegistrationNotInSession},
		{"waitlisted registration", markRequest(session.ID, testMonday, true, waitlisted.ID), domain.ErrAttendanceNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.attendance.MarkAttendance(f.ctx, f.admin, tt.req)
			if !errors.Is(err, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestAttendanceService_MarkAttendance_BatchIsAtomic(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(1, 1))
	confirmed := f.register(t, f.student("alice"), session.ID)
	waitlisted := f.register(t, f.student("bob"), session.ID)

	_, err := f.attendance.MarkAttendance(f.ctx, f.admin, markRequest(session.ID, testMonday, true, confirmed.ID, waitlisted.ID))
	if !errors.Is(err, domain.ErrAttendanceNotAllowed) {
		t.Fatalf("Expected ErrAttendanceNotAllowed, got %v", err)
	}

	records, _ := f.attendance.ListBySession(f.ctx, session.ID, nil)
	if len(records) != 0 {
		t.Errorf("Expected no records after a rejected batch, got %d", len(records))
	}
	if got := f.registration(t, confirmed.ID).AttendedSessions; got != 0 {
		t.Errorf("Expected 0 attended sessions, got %d", got)
	}
}

func TestAttendanceService_ListByRegistration_OwnerOrAdmin(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(1, 2))
	alice := f.student("alice")
	reg := f.register(t, alice, session.ID)

	if _, err := f.attendance.ListByRegistration(f.ctx, reg.ID, alice); err != nil {
		t.Errorf("Expected owner to read attendance, got %v", err)
	}
	if _, err := f.attendance.ListByRegistration(f.ctx, reg.ID, f.admin); err != nil {
		t.Errorf("Expected admin to read attendance, got %v", err)
	}
	if _, err := f.attendance.ListByRegistration(f.ctx, reg.ID, f.student("mallory")); !errors.Is(err, domain.ErrAttendanceForbidden) {
		t.Errorf("Expected ErrAttendanceForbidden, got %v", err)
	}
	if _, err := f.attendance.ListByRegistration(f.ctx, uuid.New(), f.admin); !errors.Is(err, domain.ErrRegistrationNotFound) {
		t.Errorf("Expected ErrRegistrationNotFound, got %v", err)
	}
}
