package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

func seedSlot(t *testing.T, store *MemoryStore, sessionID uuid.UUID, max int) *domain.TimeSlot {
	t.Helper()
	slot := &domain.TimeSlot{
		ID:           uuid.New(),
		LabSessionID: sessionID,
		SessionDate:  time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		StartTime:    domain.NewTimeOfDay(9, 0),
		EndTime:      domain.NewTimeOfDay(10, 0),
		GroupNumber:  1,
		MaxStudents:  max,
		Active:       true,
	}
	if err := store.Repos().Slots.CreateBatch(context.Background(), []*domain.TimeSlot{slot}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return slot
}

func TestMemoryStore_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slot := seedSlot(t, store, uuid.New(), 2)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		if ok, err := repos.Slots.IncrementIfAvailable(ctx, slot.ID); !ok || err != nil {
			t.Fatalf("Expected increment to succeed, got %t %v", ok, err)
		}
		if err := repos.Registrations.Create(ctx, &domain.Registration{
			StudentID:    uuid.New(),
			LabSessionID: slot.LabSessionID,
			Status:       domain.StatusConfirmed,
		}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the callback error, got %v", err)
	}

	stored, _ := store.Repos().Slots.GetByID(ctx, slot.ID)
	if stored.CurrentCount != 0 {
		t.Errorf("Expected count rolled back to 0, got %d", stored.CurrentCount)
	}
	regs, _ := store.Repos().Registrations.ListBySession(ctx, slot.LabSessionID)
	if len(regs) != 0 {
		t.Errorf("Expected no registrations after rollback, got %d", len(regs))
	}
}

func TestMemoryStore_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slot := seedSlot(t, store, uuid.New(), 2)

	err := store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		_, err := repos.Slots.IncrementIfAvailable(ctx, slot.ID)
		return err
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	stored, _ := store.Repos().Slots.GetByID(ctx, slot.ID)
	if stored.CurrentCount != 1 {
		t.Errorf("Expected count 1, got %d", stored.CurrentCount)
	}
}

func TestMemoryStore_ConditionalCounters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slot := seedSlot(t, store, uuid.New(), 3)
	slots := store.Repos().Slots

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := slots.IncrementIfAvailable(ctx, slot.ID)
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
				return
			}
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 3 {
		t.Errorf("Expected 3 successful increments, got %d", successes)
	}
	stored, _ := slots.GetByID(ctx, slot.ID)
	if stored.CurrentCount != 3 {
		t.Errorf("Expected count 3, got %d", stored.CurrentCount)
	}

	for i := 0; i < 3; i++ {
		if ok, _ := slots.DecrementIfPositive(ctx, slot.ID); !ok {
			t.Errorf("Expected decrement %d to succeed", i+1)
		}
	}
	if ok, _ := slots.DecrementIfPositive(ctx, slot.ID); ok {
		t.Error("Expected decrement at zero to fail")
	}

	if err := slots.SetActive(ctx, slot.ID, false); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ok, _ := slots.IncrementIfAvailable(ctx, slot.ID); ok {
		t.Error("Expected increment on an inactive slot to fail")
	}
}

func TestMemoryStore_UpdateMaxStudentsKeepsSeats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slot := seedSlot(t, store, uuid.New(), 3)
	slots := store.Repos().Slots
	slots.IncrementIfAvailable(ctx, slot.ID)
	slots.IncrementIfAvailable(ctx, slot.ID)

	if err := slots.UpdateMaxStudents(ctx, slot.LabSessionID, 1); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	stored, _ := slots.GetByID(ctx, slot.ID)
	if stored.MaxStudents != 2 {
		t.Errorf("Expected max clamped to current count 2, got %d", stored.MaxStudents)
	}
}

func TestMemoryStore_RegistrationUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	regs := store.Repos().Registrations
	studentID, sessionID := uuid.New(), uuid.New()

	if err := regs.Create(ctx, &domain.Registration{StudentID: studentID, LabSessionID: sessionID, Status: domain.StatusPending}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	err := regs.Create(ctx, &domain.Registration{StudentID: studentID, LabSessionID: sessionID, Status: domain.StatusPending})
	if !errors.Is(err, domain.ErrAlreadyRegistered) {
		t.Errorf("Expected ErrAlreadyRegistered, got %v", err)
	}

	missing, err := regs.GetByID(ctx, uuid.New())
	if err != nil || missing != nil {
		t.Errorf("Expected (nil, nil) for a missing registration, got %v, %v", missing, err)
	}
}

func TestMemoryStore_ListWaitlistedOrdersByPosition(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	regs := store.Repos().Registrations
	sessionID := uuid.New()

	for _, position := range []int{3, 1, 2} {
		p := position
		if err := regs.Create(ctx, &domain.Registration{
			StudentID:        uuid.New(),
			LabSessionID:     sessionID,
			Status:           domain.StatusWaitlisted,
			WaitlistPosition: &p,
		}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	waitlisted, err := regs.ListWaitlisted(ctx, sessionID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for i, reg := range waitlisted {
		if *reg.WaitlistPosition != i+1 {
			t.Errorf("Expected position %d at index %d, got %d", i+1, i, *reg.WaitlistPosition)
		}
	}
	count, _ := regs.CountWaitlisted(ctx, sessionID)
	if count != 3 {
		t.Errorf("Expected 3 waitlisted, got %d", count)
	}
}

func TestMemoryStore_SessionOccupancy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sessionID := uuid.New()
	slot := seedSlot(t, store, sessionID, 4)
	store.Repos().Slots.IncrementIfAvailable(ctx, slot.ID)

	rows, err := store.SessionOccupancy(ctx, sessionID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(rows) != 1 || rows[0].Capacity != 4 || rows[0].Registered != 1 {
		t.Errorf("Expected one row with 1/4, got %+v", rows)
	}
}

func TestMemoryStore_AttendanceCountsAndCascade(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repos := store.Repos()

	sessionID := uuid.New()
	if err := repos.Sessions.Create(ctx, &domain.LabSession{ID: sessionID, Name: "Lab", Room: "R1"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	reg := &domain.Registration{StudentID: uuid.New(), LabSessionID: sessionID, Status: domain.StatusConfirmed}
	if err := repos.Registrations.Create(ctx, reg); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	monday := time.Date(2026, 3, 9, 15, 30, 0, 0, time.UTC)
	for i, present := range []bool{true, false, true} {
		day := monday.AddDate(0, 0, 7*i)
		if err := repos.Attendance.Create(ctx, &domain.Attendance{RegistrationID: reg.ID, SessionDate: day, Present: present}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}
	if err := repos.Attendance.Create(ctx, &domain.Attendance{RegistrationID: reg.ID, SessionDate: monday}); err == nil {
		t.Error("Expected a second record for the same date to fail")
	}

	found, err := repos.Attendance.GetByRegistrationAndDate(ctx, reg.ID, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	if err != nil || found == nil || !found.Present {
		t.Fatalf("Expected the 2026-03-09 record, got %v (err %v)", found, err)
	}

	present, recorded, err := repos.Attendance.CountByRegistration(ctx, reg.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if present != 2 || recorded != 3 {
		t.Errorf("Expected 2 present of 3, got %d of %d", present, recorded)
	}

	bySession, _ := repos.Attendance.ListBySession(ctx, sessionID, nil)
	if len(bySession) != 3 {
		t.Errorf("Expected 3 records for the session, got %d", len(bySession))
	}

	if err := repos.Sessions.Delete(ctx, sessionID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	remaining, _ := repos.Attendance.ListByRegistration(ctx, reg.ID)
	if len(remaining) != 0 {
		t.Errorf("Expected attendance removed with the session, got %d", len(remaining))
	}
}
