package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	domain "lab-registration/internal/domain/registration"
	"lab-registration/internal/domain/user"
	interfaces "lab-registration/internal/interfaces/infrastructure"
	serviceInterfaces "lab-registration/internal/interfaces/service"

	"github.com/google/uuid"
)

func TestRegistrationService_Register_FillsSlotsThenWaitlists(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(2, 1))
	group1 := slotForGroup(session.Slots, 1)
	group2 := slotForGroup(session.Slots, 2)

	a := f.register(t, f.student("alice"), session.ID)
	b := f.register(t, f.student("bob"), session.ID)

	result, err := f.regs.Register(f.ctx, f.student("carol"), &RegisterRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	c := result.Registration

	if a.Status != domain.StatusConfirmed || a.TimeSlotID == nil || *a.TimeSlotID != group1.ID {
		t.Errorf("Expected alice confirmed into group 1, got %s in %v", a.Status, a.TimeSlotID)
	}
	if b.Status != domain.StatusConfirmed || b.TimeSlotID == nil || *b.TimeSlotID != group2.ID {
		t.Errorf("Expected bob confirmed into group 2, got %s in %v", b.Status, b.TimeSlotID)
	}
	if c.Status != domain.StatusWaitlisted {
		t.Fatalf("Expected carol waitlisted, got %s", c.Status)
	}
	if c.WaitlistPosition == nil || *c.WaitlistPosition != 1 {
		t.Errorf("Expected waitlist position 1, got %v", c.WaitlistPosition)
	}
	expectedMessage := "Lab session is full, added to waitlist at position 1"
	if result.Message != expectedMessage {
		t.Errorf("Expected message '%s', got '%s'", expectedMessage, result.Message)
	}

	if n := len(f.publisher.ofType(interfaces.EventRegistrationConfirmed)); n != 2 {
		t.Errorf("Expected 2 confirmed events, got %d", n)
	}
	waitlisted := f.publisher.ofType(interfaces.EventRegistrationWaitlisted)
	if len(waitlisted) != 1 || waitlisted[0].Position != 1 || waitlisted[0].StudentID != c.StudentID {
		t.Errorf("Expected one waitlisted event for carol at position 1, got %+v", waitlisted)
	}

	// cancelling alice hands group 1 to carol
	if _, err := f.regs.Cancel(f.ctx, a.ID, &user.Principal{ID: a.StudentID}); err != nil {
		t.Fatalf("Expected no error cancelling, got %v", err)
	}

	promoted := f.registration(t, c.ID)
	if promoted.Status != domain.StatusConfirmed {
		t.Fatalf("Expected carol confirmed after promotion, got %s", promoted.Status)
	}
	if promoted.TimeSlotID == nil || *promoted.TimeSlotID != group1.ID {
		t.Errorf("Expected carol in group 1, got %v", promoted.TimeSlotID)
	}
	if promoted.WaitlistPosition != nil {
		t.Errorf("Expected waitlist position cleared, got %d", *promoted.WaitlistPosition)
	}
	f.assertWaitlist(t, session.ID)

	if got := f.slot(t, group1.ID).CurrentCount; got != 1 {
		t.Errorf("Expected group 1 count 1, got %d", got)
	}
	events := f.publisher.ofType(interfaces.EventWaitlistPromoted)
	if len(events) != 1 || events[0].StudentID != c.StudentID {
		t.Errorf("Expected one promotion event for carol, got %+v", events)
	}
}

func TestRegistrationService_Register_ConcurrentNeverOverbooks(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(2, 2))
	capacity := 4
	students := 12

	var wg sync.WaitGroup
	errs := make(chan error, students)
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			student := f.student("student")
			if _, err := f.regs.Register(f.ctx, student, &RegisterRequest{SessionID: session.ID}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Expected no error, got %v", err)
	}

	regs, err := f.regs.ListBySession(f.ctx, session.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	confirmed, waitlisted := 0, 0
	positions := make(map[int]bool)
	for _, reg := range regs {
		switch reg.Status {
		case domain.StatusConfirmed:
			confirmed++
		case domain.StatusWaitlisted:
			waitlisted++
			positions[*reg.WaitlistPosition] = true
		}
	}
	if confirmed != capacity {
		t.Errorf("Expected %d confirmed, got %d", capacity, confirmed)
	}
	if waitlisted != students-capacity {
		t.Errorf("Expected %d waitlisted, got %d", students-capacity, waitlisted)
	}
	for p := 1; p <= students-capacity; p++ {
		if !positions[p] {
			t.Errorf("Expected waitlist position %d to be taken", p)
		}
	}

	slots, _ := f.sessions.ListSlots(f.ctx, session.ID)
	for _, slot := range slots {
		if slot.CurrentCount > slot.MaxStudents {
			t.Errorf("Expected slot %d count <= %d, got %d", slot.GroupNumber, slot.MaxStudents, slot.CurrentCount)
		}
	}
}

func TestRegistrationService_Register_ReactivatesCancelledRow(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(1, 2))
	alice := f.student("alice")

	first := f.register(t, alice, session.ID)
	if _, err := f.regs.Cancel(f.ctx, first.ID, alice); err != nil {
		t.Fatalf("Expected no error cancelling, got %v", err)
	}

	result, err := f.regs.Register(f.ctx, alice, &RegisterRequest{SessionID: session.ID, Notes: "second try"})
	if err != nil {
		t.Fatalf("Expected no error re-registering, got %v", err)
	}
	again := result.Registration

	if again.ID != first.ID {
		t.Errorf("Expected registration %s to be reused, got %s", first.ID, again.ID)
	}
	if again.Status != domain.StatusConfirmed {
		t.Errorf("Expected status CONFIRMED, got %s", again.Status)
	}
	if again.CancelledAt != nil {
		t.Error("Expected cancelled_at to be cleared")
	}
	if again.StudentNotes != "second try" {
		t.Errorf("Expected notes 'second try', got '%s'", again.StudentNotes)
	}

	regs, _ := f.regs.ListBySession(f.ctx, session.ID)
	if len(regs) != 1 {
		t.Errorf("Expected 1 registration row, got %d", len(regs))
	}
	slots, _ := f.sessions.ListSlots(f.ctx, session.ID)
	if slots[0].CurrentCount != 1 {
		t.Errorf("Expected slot count 1, got %d", slots[0].CurrentCount)
	}
}

func TestRegistrationService_Register_Rejections(t *testing.T) {
	f := newFixture(t)
	open := f.createSession(t, f.sessionRequest(1, 5))

	draftReq := f.sessionRequest(1, 5)
	draftReq.Room = "R2"
	draftReq.Status = domain.SessionDraft
	draft := f.createSession(t, draftReq)

	deadline := f.now.Add(-time.Hour)
	lateReq := f.sessionRequest(1, 5)
	lateReq.Room = "R3"
	lateReq.RegistrationDeadline = &deadline
	late := f.createSession(t, lateReq)

	otherProgram := uuid.New()
	f.store.SeedProgram(&domain.Program{ProgramID: otherProgram, Code: "EE", Name: "Electrical Engineering"})
	restrictedReq := f.sessionRequest(1, 5)
	restrictedReq.Room = "R4"
	restrictedReq.OpenToAllPrograms = false
	restrictedReq.AllowedProgramIDs = []uuid.UUID{otherProgram}
	restricted := f.createSession(t, restrictedReq)

	alice := f.student("alice")
	f.register(t, alice, open.ID)

	tests := []struct {
		name      string
		sessionID uuid.UUID
		expected  error
	}{
		{"session not open", draft.ID, domain.ErrSessionNotOpen},
		{"deadline passed", late.ID, domain.ErrDeadlinePassed},
		{"already registered", open.ID, domain.ErrAlreadyRegistered},
		{"program not eligible", restricted.ID, domain.ErrProgramNotEligible},
		{"unknown session", uuid.New(), domain.ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.regs.Register(f.ctx, alice, &RegisterRequest{SessionID: tt.sessionID})
			if !errors.Is(err, tt.expected) {
				t.Fatalf("Expected error %v, got %v", tt.expected, err)
			}
			if result != nil {
				t.Error("Expected nil result on rejection")
			}
		})
	}

	// a rejected registration leaves nothing behind
	regs, _ := f.store.Repos().Registrations.ListByStudent(f.ctx, alice.ID, false)
	if len(regs) != 1 {
		t.Errorf("Expected 1 registration for alice, got %d", len(regs))
	}
}

func TestRegistrationService_Register_RequestedSlot(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(2, 1))
	group2 := slotForGroup(session.Slots, 2)

	a, err := f.regs.Register(f.ctx, f.student("alice"), &RegisterRequest{SessionID: session.ID, TimeSlotID: &group2.ID})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if a.Registration.TimeSlotID == nil || *a.Registration.TimeSlotID != group2.ID {
		t.Errorf("Expected alice in group 2, got %v", a.Registration.TimeSlotID)
	}

	// group 1 still has room but bob asked for group 2
	b, err := f.regs.Register(f.ctx, f.student("bob"), &RegisterRequest{SessionID: session.ID, TimeSlotID: &group2.ID})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if b.Registration.Status != domain.StatusWaitlisted {
		t.Errorf("Expected bob waitlisted, got %s", b.Registration.Status)
	}

	otherReq := f.sessionRequest(1, 1)
	otherReq.Room = "R9"
	other := f.createSession(t, otherReq)
	foreign := other.Slots[0].ID
	_, err = f.regs.Register(f.ctx, f.student("carol"), &RegisterRequest{SessionID: session.ID, TimeSlotID: &foreign})
	if !errors.Is(err, domain.ErrSlotNotInSession) {
		t.Errorf("Expected ErrSlotNotInSession, got %v", err)
	}
	missing := uuid.New()
	_, err = f.regs.Register(f.ctx, f.student("dave"), &RegisterRequest{SessionID: session.ID, TimeSlotID: &missing})
	if !errors.Is(err, domain.ErrSlotNotFound) {
		t.Errorf("Expected ErrSlotNotFound, got %v", err)
	}
}

func TestRegistrationService_Cancel_KeepsWaitlistContiguous(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(1, 1))

	f.register(t, f.student("alice"), session.ID)
	b := f.register(t, f.student("bob"), session.ID)
	carol := f.student("carol")
	c := f.register(t, carol, session.ID)
	d := f.register(t, f.student("dave"), session.ID)
	f.assertWaitlist(t, session.ID, b.ID, c.ID, d.ID)

	cancelled, err := f.regs.Cancel(f.ctx, c.ID, carol)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Errorf("Expected status CANCELLED, got %s", cancelled.Status)
	}
	if cancelled.WaitlistPosition != nil {
		t.Error("Expected waitlist position cleared on cancel")
	}
	f.assertWaitlist(t, session.ID, b.ID, d.ID)

	if n := len(f.publisher.ofType(interfaces.EventWaitlistPromoted)); n != 0 {
		t.Errorf("Expected no promotion when a waitlisted registration cancels, got %d", n)
	}
}

func TestRegistrationService_Cancel_Errors(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(1, 2))
	alice := f.student("alice")
	reg := f.register(t, alice, session.ID)

	if _, err := f.regs.Cancel(f.ctx, reg.ID, f.student("mallory")); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
	if _, err := f.regs.Cancel(f.ctx, uuid.New(), alice); !errors.Is(err, domain.ErrRegistrationNotFound) {
		t.Errorf("Expected ErrRegistrationNotFound, got %v", err)
	}
	if _, err := f.regs.Cancel(f.ctx, reg.ID, alice); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := f.regs.Cancel(f.ctx, reg.ID, alice); !errors.Is(err, domain.ErrAlreadyCancelled) {
		t.Errorf("Expected ErrAlreadyCancelled, got %v", err)
	}

	bob := f.student("bob")
	done := f.register(t, bob, session.ID)
	if _, err := f.regs.UpdateStatus(f.ctx, done.ID, &serviceInterfaces.UpdateStatusRequest{Status: domain.StatusCompleted}); err != nil {
		t.Fatalf("Expected no error completing, got %v", err)
	}
	if _, err := f.regs.Cancel(f.ctx, done.ID, bob); !errors.Is(err, domain.ErrCannotCancelCompleted) {
		t.Errorf("Expected ErrCannotCancelCompleted, got %v", err)
	}
}

func TestRegistrationService_ChangeSlot(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(3, 1))
	group1 := slotForGroup(session.Slots, 1)
	group3 := slotForGroup(session.Slots, 3)

	a := f.register(t, f.student("alice"), session.ID)
	b := f.register(t, f.student("bob"), session.ID)

	moved, err := f.regs.ChangeSlot(f.ctx, a.ID, 3)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if moved.TimeSlotID == nil || *moved.TimeSlotID != group3.ID {
		t.Errorf("Expected alice in group 3, got %v", moved.TimeSlotID)
	}
	if got := f.slot(t, group1.ID).CurrentCount; got != 0 {
		t.Errorf("Expected group 1 count 0, got %d", got)
	}
	if got := f.slot(t, group3.ID).CurrentCount; got != 1 {
		t.Errorf("Expected group 3 count 1, got %d", got)
	}

	// group 2 is held by bob
	_, err = f.regs.ChangeSlot(f.ctx, a.ID, 2)
	var badRequest *domain.BadRequestError
	if !errors.As(err, &badRequest) {
		t.Errorf("Expected BadRequestError for a full group, got %v", err)
	}

	if _, err := f.regs.Cancel(f.ctx, b.ID, &user.Principal{ID: b.StudentID}); err != nil {
		t.Fatalf("Expected no error cancelling, got %v", err)
	}
	if _, err := f.regs.ChangeSlot(f.ctx, b.ID, 1); !errors.Is(err, domain.ErrSlotNotConfirmed) {
		t.Errorf("Expected ErrSlotNotConfirmed, got %v", err)
	}
}

func TestRegistrationService_UpdateStatus(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(1, 1))

	a := f.register(t, f.student("alice"), session.ID)
	b := f.register(t, f.student("bob"), session.ID)

	notes := "dropped the course"
	cancelled, err := f.regs.UpdateStatus(f.ctx, a.ID, &serviceInterfaces.UpdateStatusRequest{
		Status:     domain.StatusCancelled,
		AdminNotes: &notes,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cancelled.Status != domain.StatusCancelled || cancelled.AdminNotes != notes {
		t.Errorf("Expected CANCELLED with admin notes, got %s '%s'", cancelled.Status, cancelled.AdminNotes)
	}
	if got := f.registration(t, b.ID).Status; got != domain.StatusConfirmed {
		t.Errorf("Expected bob promoted to CONFIRMED, got %s", got)
	}

	_, err = f.regs.UpdateStatus(f.ctx, a.ID, &serviceInterfaces.UpdateStatusRequest{Status: domain.StatusConfirmed})
	var transition *domain.InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Errorf("Expected InvalidTransitionError for a cancelled registration, got %v", err)
	}

	c := f.register(t, f.student("carol"), session.ID)
	_, err = f.regs.UpdateStatus(f.ctx, c.ID, &serviceInterfaces.UpdateStatusRequest{Status: domain.StatusConfirmed})
	var badRequest *domain.BadRequestError
	if !errors.As(err, &badRequest) {
		t.Errorf("Expected BadRequestError confirming without a slot, got %v", err)
	}
	if _, err := f.regs.UpdateStatus(f.ctx, c.ID, &serviceInterfaces.UpdateStatusRequest{Status: domain.StatusCompleted}); !errors.As(err, &transition) {
		t.Errorf("Expected InvalidTransitionError completing a waitlisted registration, got %v", err)
	}

	completed, err := f.regs.UpdateStatus(f.ctx, b.ID, &serviceInterfaces.UpdateStatusRequest{Status: domain.StatusCompleted})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if completed.Status != domain.StatusCompleted || completed.CompletedAt == nil {
		t.Errorf("Expected COMPLETED with completed_at, got %s", completed.Status)
	}
}

func TestRegistrationService_ListByStudent(t *testing.T) {
	f := newFixture(t)
	first := f.createSession(t, f.sessionRequest(1, 1))
	secondReq := f.sessionRequest(1, 1)
	secondReq.Room = "R2"
	second := f.createSession(t, secondReq)

	alice := f.student("alice")
	reg := f.register(t, alice, first.ID)
	f.register(t, alice, second.ID)
	if _, err := f.regs.Cancel(f.ctx, reg.ID, alice); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	all, err := f.regs.ListByStudent(f.ctx, alice.ID, false)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 registrations, got %d", len(all))
	}
	active, _ := f.regs.ListByStudent(f.ctx, alice.ID, true)
	if len(active) != 1 {
		t.Errorf("Expected 1 active registration, got %d", len(active))
	}

	if _, err := f.regs.ListBySession(f.ctx, uuid.New()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}
