package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func date(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestGenerateSlots_SplitsWindowPerWeekday(t *testing.T) {
	schedule := Schedule{
		StartDate:          date("2026-01-05"), // Monday
		EndDate:            date("2026-01-18"), // Sunday, two weeks later
		StartTime:          NewTimeOfDay(9, 0),
		EndTime:            NewTimeOfDay(12, 0),
		Days:               Weekdays{time.Monday, time.Wednesday},
		SlotsPerDay:        3,
		MaxStudentsPerSlot: 10,
	}

	slots, err := GenerateSlots(uuid.New(), schedule)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(slots) != 12 {
		t.Fatalf("Expected 12 slots, got %d", len(slots))
	}

	wantDates := []string{"2026-01-05", "2026-01-07", "2026-01-12", "2026-01-14"}
	for i, slot := range slots {
		if got := slot.SessionDate.Format(DateLayout); got != wantDates[i/3] {
			t.Errorf("slot %d: expected date %s, got %s", i, wantDates[i/3], got)
		}
		if slot.GroupNumber != i%3+1 {
			t.Errorf("slot %d: expected group %d, got %d", i, i%3+1, slot.GroupNumber)
		}
		if slot.CurrentCount != 0 || !slot.Active || slot.MaxStudents != 10 {
			t.Errorf("slot %d: unexpected initial state %+v", i, slot)
		}
	}

	if slots[0].StartTime.String() != "09:00" || slots[0].EndTime.String() != "10:00" {
		t.Errorf("Expected first slot 09:00-10:00, got %s-%s", slots[0].StartTime, slots[0].EndTime)
	}
	if slots[2].StartTime.String() != "11:00" || slots[2].EndTime.String() != "12:00" {
		t.Errorf("Expected third slot 11:00-12:00, got %s-%s", slots[2].StartTime, slots[2].EndTime)
	}
}

func TestSchedule_IntervalsUseIntegerDivision(t *testing.T) {
	schedule := Schedule{
		StartTime:   NewTimeOfDay(9, 0),
		EndTime:     NewTimeOfDay(10, 40), // 100 minutes
		SlotsPerDay: 3,
	}

	intervals := schedule.Intervals()
	want := [][2]string{{"09:00", "09:33"}, {"09:33", "10:06"}, {"10:06", "10:39"}}
	for i, iv := range intervals {
		if iv[0].String() != want[i][0] || iv[1].String() != want[i][1] {
			t.Errorf("interval %d: expected %v, got %s-%s", i, want[i], iv[0], iv[1])
		}
	}
}

func TestGenerateSlots_InvalidSchedule(t *testing.T) {
	base := Schedule{
		StartDate:          date("2026-01-05"),
		EndDate:            date("2026-01-05"),
		StartTime:          NewTimeOfDay(9, 0),
		EndTime:            NewTimeOfDay(11, 0),
		Days:               Weekdays{time.Monday},
		SlotsPerDay:        2,
		MaxStudentsPerSlot: 1,
	}

	tests := []struct {
		name   string
		mutate func(s *Schedule)
	}{
		{"zero slots per day", func(s *Schedule) { s.SlotsPerDay = 0 }},
		{"negative slots per day", func(s *Schedule) { s.SlotsPerDay = -1 }},
		{"empty window", func(s *Schedule) { s.EndTime = s.StartTime }},
		{"inverted window", func(s *Schedule) { s.EndTime = NewTimeOfDay(8, 0) }},
		{"no weekdays", func(s *Schedule) { s.Days = nil }},
		{"inverted dates", func(s *Schedule) { s.EndDate = date("2026-01-04") }},
		{"zero capacity", func(s *Schedule) { s.MaxStudentsPerSlot = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			_, err := GenerateSlots(uuid.New(), s)
			var scheduleErr *InvalidScheduleError
			if !errors.As(err, &scheduleErr) {
				t.Fatalf("Expected InvalidScheduleError, got %v", err)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected error to match ErrInvalid")
			}
		})
	}
}

func TestGenerateSlots_NoMatchingDays(t *testing.T) {
	schedule := Schedule{
		StartDate:          date("2026-01-06"), // Tuesday
		EndDate:            date("2026-01-06"),
		StartTime:          NewTimeOfDay(9, 0),
		EndTime:            NewTimeOfDay(11, 0),
		Days:               Weekdays{time.Monday},
		SlotsPerDay:        2,
		MaxStudentsPerSlot: 1,
	}

	slots, err := GenerateSlots(uuid.New(), schedule)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("Expected no slots, got %d", len(slots))
	}
}

func TestLabSession_TotalSessions(t *testing.T) {
	tests := []struct {
		start, end string
		days       Weekdays
		want       int
	}{
		{"2026-01-05", "2026-01-05", Weekdays{time.Monday}, 1},
		{"2026-01-05", "2026-01-11", Weekdays{time.Monday, time.Thursday}, 2},
		{"2026-01-05", "2026-01-12", Weekdays{time.Monday}, 2},
		{"2026-01-05", "2026-03-29", Weekdays{time.Tuesday}, 12},
	}

	for _, tt := range tests {
		session := &LabSession{StartDate: date(tt.start), EndDate: date(tt.end), SessionDays: tt.days}
		if got := session.TotalSessions(); got != tt.want {
			t.Errorf("%s..%s: expected %d total sessions, got %d", tt.start, tt.end, tt.want, got)
		}
	}
}
