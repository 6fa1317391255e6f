package service

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "lab-registration/internal/domain/registration"
	"lab-registration/internal/domain/user"
	"lab-registration/internal/infrastructure/repository"
	interfaces "lab-registration/internal/interfaces/infrastructure"
	serviceInterfaces "lab-registration/internal/interfaces/service"

	"github.com/google/uuid"
)

// 2026-03-09 is a Monday
const testMonday = "2026-03-09"

type recordingPublisher struct {
	mu     sync.Mutex
	events []interfaces.NotificationEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...interfaces.NotificationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) ofType(eventType interfaces.EventType) []interfaces.NotificationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []interfaces.NotificationEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	ctx        context.Context
	store      *repository.MemoryStore
	sessions   *LabSessionService
	regs       *RegistrationService
	attendance *AttendanceService
	publisher  *recordingPublisher
	admin      *user.Principal
	courseID   uuid.UUID
	programID  uuid.UUID
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:       context.Background(),
		store:     repository.NewMemoryStore(),
		publisher: &recordingPublisher{},
		admin:     &user.Principal{ID: uuid.New(), Email: "admin@example.edu", Role: user.RoleAdmin},
		courseID:  uuid.New(),
		programID: uuid.New(),
		now:       time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.store.SeedCourse(&domain.Course{CourseID: f.courseID, CourseCode: "CS101", CourseName: "Intro to Computing"})
	f.store.SeedProgram(&domain.Program{ProgramID: f.programID, Code: "CS", Name: "Computer Science"})

	allocator := NewSlotAllocator(clock)
	waitlist := NewWaitlistManager(allocator)
	f.sessions = NewLabSessionService(f.store, NewRoomConflictChecker(), waitlist, f.store, nil, f.publisher, clock)
	f.regs = NewRegistrationService(f.store, allocator, waitlist, f.publisher, nil, clock)
	f.attendance = NewAttendanceService(f.store, clock)
	return f
}

// sessionRequest describes a single Monday, 09:00-11:00 session in room R1
func (f *fixture) sessionRequest(slotsPerDay, maxPerSlot int) *serviceInterfaces.CreateSessionRequest {
	return &serviceInterfaces.CreateSessionRequest{
		Name:               "Networking Lab",
		Room:               "R1",
		StartDate:          testMonday,
		EndDate:            testMonday,
		StartTime:          "09:00",
		EndTime:            "11:00",
		SessionDays:        []string{"MONDAY"},
		MaxStudentsPerSlot: maxPerSlot,
		SlotsPerDay:        slotsPerDay,
		Status:             domain.SessionOpen,
		CourseID:           f.courseID,
		OpenToAllPrograms:  true,
	}
}

func (f *fixture) createSession(t *testing.T, req *serviceInterfaces.CreateSessionRequest) *serviceInterfaces.SessionDetail {
	t.Helper()
	detail, err := f.sessions.CreateSession(f.ctx, f.admin, req)
	if err != nil {
		t.Fatalf("Expected no error creating session, got %v", err)
	}
	return detail
}

func (f *fixture) student(name string) *user.Principal {
	programID := f.programID
	return &user.Principal{
		ID:        uuid.New(),
		Email:     name + "@example.edu",
		FullName:  name,
		ProgramID: &programID,
		Role:      user.RoleStudent,
	}
}

func (f *fixture) register(t *testing.T, student *user.Principal, sessionID uuid.UUID) *domain.Registration {
	t.Helper()
	result, err := f.regs.Register(f.ctx, student, &RegisterRequest{SessionID: sessionID})
	if err != nil {
		t.Fatalf("Expected no error registering %s, got %v", student.FullName, err)
	}
	return result.Registration
}

func (f *fixture) registration(t *testing.T, id uuid.UUID) *domain.Registration {
	t.Helper()
	reg, err := f.store.Repos().Registrations.GetByID(f.ctx, id)
	if err != nil || reg == nil {
		t.Fatalf("Expected registration %s, got %v (err %v)", id, reg, err)
	}
	return reg
}

func (f *fixture) slot(t *testing.T, id uuid.UUID) *domain.TimeSlot {
	t.Helper()
	slot, err := f.store.Repos().Slots.GetByID(f.ctx, id)
	if err != nil || slot == nil {
		t.Fatalf("Expected slot %s, got %v (err %v)", id, slot, err)
	}
	return slot
}

// assertWaitlist checks positions are exactly 1..N in the given order
func (f *fixture) assertWaitlist(t *testing.T, sessionID uuid.UUID, expected ...uuid.UUID) {
	t.Helper()
	waitlisted, err := f.regs.Waitlist(f.ctx, sessionID)
	if err != nil {
		t.Fatalf("Expected no error reading waitlist, got %v", err)
	}
	if len(waitlisted) != len(expected) {
		t.Fatalf("Expected %d waitlisted registrations, got %d", len(expected), len(waitlisted))
	}
	for i, reg := range waitlisted {
		if reg.ID != expected[i] {
			t.Errorf("Expected registration %s at position %d, got %s", expected[i], i+1, reg.ID)
		}
		if reg.WaitlistPosition == nil || *reg.WaitlistPosition != i+1 {
			t.Errorf("Expected waitlist position %d, got %v", i+1, reg.WaitlistPosition)
		}
	}
}

func slotForGroup(slots []*domain.TimeSlot, group int) *domain.TimeSlot {
	for _, slot := range slots {
		if slot.GroupNumber == group {
			return slot
		}
	}
	return nil
}
