package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is the input of the slot grid
type Schedule struct {
	StartDate          time.Time
	EndDate            time.Time
	StartTime          TimeOfDay
	EndTime            TimeOfDay
	Days               Weekdays
	SlotsPerDay        int
	MaxStudentsPerSlot int
}

// Validate checks the schedule shape before anything is persisted
func (s Schedule) Validate() error {
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return &InvalidScheduleError{Reason: "start and end dates are required"}
	}
	if DateOf(s.StartDate).After(DateOf(s.EndDate)) {
		return &InvalidScheduleError{Reason: "end date must be on or after start date"}
	}
	if s.StartTime >= s.EndTime {
		return &InvalidScheduleError{Reason: "end time must be after start time"}
	}
	if len(s.Days) == 0 {
		return &InvalidScheduleError{Reason: "at least one session day is required"}
	}
	if s.SlotsPerDay <= 0 {
		return &InvalidScheduleError{Reason: "slots per day must be positive"}
	}
	if int(s.EndTime-s.StartTime) < s.SlotsPerDay {
		return &InvalidScheduleError{Reason: "daily window is shorter than one minute per slot"}
	}
	if s.MaxStudentsPerSlot <= 0 {
		return &InvalidScheduleError{Reason: "max students per slot must be positive"}
	}
	return nil
}

// Dates lists every day in the range that falls on a session weekday
func (s Schedule) Dates() []time.Time {
	var dates []time.Time
	end := DateOf(s.EndDate)
	for d := DateOf(s.StartDate); !d.After(end); d = d.AddDate(0, 0, 1) {
		if s.Days.Contains(d.Weekday()) {
			dates = append(dates, d)
		}
	}
	return dates
}

// Intervals divides the daily window into SlotsPerDay sequential sub-intervals.
// Each slot lasts total/SlotsPerDay minutes; the window end is not padded.
func (s Schedule) Intervals() [][2]TimeOfDay {
	duration := int(s.EndTime-s.StartTime) / s.SlotsPerDay
	out := make([][2]TimeOfDay, 0, s.SlotsPerDay)
	start := s.StartTime
	for i := 0; i < s.SlotsPerDay; i++ {
		end := start + TimeOfDay(duration)
		out = append(out, [2]TimeOfDay{start, end})
		start = end
	}
	return out
}

// GenerateSlots builds the ordered slot grid of a session
func GenerateSlots(sessionID uuid.UUID, s Schedule) ([]*TimeSlot, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	intervals := s.Intervals()
	dates := s.Dates()
	slots := make([]*TimeSlot, 0, len(dates)*len(intervals))
	for _, date := range dates {
		for i, iv := range intervals {
			slots = append(slots, &TimeSlot{
				ID:           uuid.New(),
				LabSessionID: sessionID,
				SessionDate:  date,
				StartTime:    iv[0],
				EndTime:      iv[1],
				GroupNumber:  i + 1,
				MaxStudents:  s.MaxStudentsPerSlot,
				CurrentCount: 0,
				Active:       true,
			})
		}
	}
	return slots, nil
}
