package service

import (
	"context"
	"errors"
	"testing"

	domain "lab-registration/internal/domain/registration"
	"lab-registration/internal/infrastructure/repository"
	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

// interleavingStore commits effect as another writer would, at the moment the
// first transaction asks for a session row lock. Reads made before that lock
// are therefore stale.
type interleavingStore struct {
	*repository.MemoryStore
	effect func(repos interfaces.Repositories) error
	fired  bool
}

func (s *interleavingStore) WithinTx(ctx context.Context, fn func(repos interfaces.Repositories) error) error {
	firedHere := false
	err := s.MemoryStore.WithinTx(ctx, func(repos interfaces.Repositories) error {
		inner := repos
		repos.Sessions = &lockHook{LabSessionRepository: inner.Sessions, before: func() error {
			if s.fired {
				return nil
			}
			s.fired = true
			if err := s.effect(inner); err != nil {
				return err
			}
			firedHere = true
			return nil
		}}
		return fn(repos)
	})
	// the rollback discarded the effect, but the other writer had committed it
	if err != nil && firedHere {
		if replayErr := s.MemoryStore.WithinTx(ctx, s.effect); replayErr != nil {
			return replayErr
		}
	}
	return err
}

type lockHook struct {
	interfaces.LabSessionRepository
	before func() error
}

func (h *lockHook) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.LabSession, error) {
	if err := h.before(); err != nil {
		return nil, err
	}
	return h.LabSessionRepository.GetByIDForUpdate(ctx, id)
}

// interleaved returns a registration service whose next lock runs effect first
func (f *fixture) interleaved(effect func(repos interfaces.Repositories) error) (*RegistrationService, *interleavingStore) {
	store := &interleavingStore{MemoryStore: f.store, effect: effect}
	return NewRegistrationService(store, f.regs.allocator, f.regs.waitlist, nil, nil, f.regs.now), store
}

// assertSeatsMatch checks every slot counter equals its confirmed registrations
func (f *fixture) assertSeatsMatch(t *testing.T, sessionID uuid.UUID) {
	t.Helper()
	slots, err := f.sessions.ListSlots(f.ctx, sessionID)
	if err != nil {
		t.Fatalf("Expected no error listing slots, got %v", err)
	}
	regs, err := f.regs.ListBySession(f.ctx, sessionID)
	if err != nil {
		t.Fatalf("Expected no error listing registrations, got %v", err)
	}
	for _, slot := range slots {
		seated := 0
		for _, reg := range regs {
			if reg.Status == domain.StatusConfirmed && reg.TimeSlotID != nil && *reg.TimeSlotID == slot.ID {
				seated++
			}
		}
		if seated != slot.CurrentCount {
			t.Errorf("Expected slot group %d count %d to match %d confirmed registrations", slot.GroupNumber, slot.CurrentCount, seated)
		}
		if slot.CurrentCount > slot.MaxStudents {
			t.Errorf("Expected slot group %d within capacity %d, got %d", slot.GroupNumber, slot.MaxStudents, slot.CurrentCount)
		}
	}
}

func TestRegistrationService_Cancel_AfterConcurrentCancel(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(1, 1))
	alice := f.student("alice")
	aliceReg := f.register(t, alice, session.ID)
	carolReg := f.register(t, f.student("carol"), session.ID)

	regs, store := f.interleaved(func(repos interfaces.Repositories) error {
		reg, err := repos.Registrations.GetByID(f.ctx, aliceReg.ID)
		if err != nil {
			return err
		}
		_, err = f.regs.cancelLocked(f.ctx, repos, reg, "")
		return err
	})

	_, err := regs.Cancel(f.ctx, aliceReg.ID, alice)
	if !errors.Is(err, domain.ErrAlreadyCancelled) {
		t.Fatalf("Expected ErrAlreadyCancelled, got %v", err)
	}
	if !store.fired {
		t.Fatal("Expected the concurrent cancel to run")
	}

	carol := f.registration(t, carolReg.ID)
	if carol.Status != domain.StatusConfirmed {
		t.Errorf("Expected carol promoted to CONFIRMED, got %s", carol.Status)
	}
	slots, _ := f.sessions.ListSlots(f.ctx, session.ID)
	if slots[0].CurrentCount != 1 {
		t.Errorf("Expected slot count 1, got %d", slots[0].CurrentCount)
	}
	f.assertSeatsMatch(t, session.ID)

	dave := f.register(t, f.student("dave"), session.ID)
	if dave.Status != domain.StatusWaitlisted {
		t.Errorf("Expected dave WAITLISTED on a full slot, got %s", dave.Status)
	}
	f.assertSeatsMatch(t, session.ID)
}

func TestRegistrationService_ChangeSlot_AfterConcurrentMove(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(2, 2))
	aliceReg := f.register(t, f.student("alice"), session.ID)
	f.register(t, f.student("bob"), session.ID)

	regs, store := f.interleaved(func(repos interfaces.Repositories) error {
		reg, err := repos.Registrations.GetByID(f.ctx, aliceReg.ID)
		if err != nil {
			return err
		}
		target, err := repos.Slots.FindAvailableByGroup(f.ctx, session.ID, 2)
		if err != nil {
			return err
		}
		if _, err := f.regs.allocator.Move(f.ctx, repos, reg, target); err != nil {
			return err
		}
		return repos.Registrations.Update(f.ctx, reg)
	})

	moved, err := regs.ChangeSlot(f.ctx, aliceReg.ID, 2)
	if err != nil {
		t.Fatalf("Expected no error moving to the slot already held, got %v", err)
	}
	if !store.fired {
		t.Fatal("Expected the concurrent move to run")
	}

	slots, _ := f.sessions.ListSlots(f.ctx, session.ID)
	group1, group2 := slotForGroup(slots, 1), slotForGroup(slots, 2)
	if moved.TimeSlotID == nil || *moved.TimeSlotID != group2.ID {
		t.Errorf("Expected alice in group 2, got %v", moved.TimeSlotID)
	}
	if group1.CurrentCount != 1 {
		t.Errorf("Expected group 1 count 1, got %d", group1.CurrentCount)
	}
	if group2.CurrentCount != 1 {
		t.Errorf("Expected group 2 count 1, got %d", group2.CurrentCount)
	}
	f.assertSeatsMatch(t, session.ID)
}

func TestRegistrationService_Register_AfterConcurrentReactivation(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, f.sessionRequest(1, 1))
	alice := f.student("alice")
	aliceReg := f.register(t, alice, session.ID)
	bobReg := f.register(t, f.student("bob"), session.ID)
	if _, err := f.regs.Cancel(f.ctx, aliceReg.ID, alice); err != nil {
		t.Fatalf("Expected no error cancelling, got %v", err)
	}

	regs, store := f.interleaved(func(repos interfaces.Repositories) error {
		reg, err := repos.Registrations.GetByID(f.ctx, aliceReg.ID)
		if err != nil {
			return err
		}
		reg.Reactivate("first try", 1, f.now)
		if _, err := f.regs.waitlist.Enqueue(f.ctx, repos, reg); err != nil {
			return err
		}
		return repos.Registrations.Update(f.ctx, reg)
	})

	_, err := regs.Register(f.ctx, alice, &RegisterRequest{SessionID: session.ID, Notes: "second try"})
	if !errors.Is(err, domain.ErrAlreadyRegistered) {
		t.Fatalf("Expected ErrAlreadyRegistered, got %v", err)
	}
	if !store.fired {
		t.Fatal("Expected the concurrent reactivation to run")
	}

	f.assertWaitlist(t, session.ID, aliceReg.ID)
	if got := f.registration(t, aliceReg.ID).StudentNotes; got != "first try" {
		t.Errorf("Expected notes 'first try', got '%s'", got)
	}
	if got := f.registration(t, bobReg.ID).Status; got != domain.StatusConfirmed {
		t.Errorf("Expected bob to keep the seat, got %s", got)
	}
	f.assertSeatsMatch(t, session.ID)
}
