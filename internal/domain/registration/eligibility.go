package domain

import "github.com/google/uuid"

// ProgramEligible is the single eligibility predicate for registering into a session
func ProgramEligible(session *LabSession, programID *uuid.UUID) bool {
	if session.OpenToAllPrograms {
		return true
	}
	if programID == nil {
		return false
	}
	for _, allowed := range session.AllowedProgramIDs {
		if allowed == *programID {
			return true
		}
	}
	return false
}

// Overlaps tests half-open intervals [s1,e1) and [s2,e2)
func Overlaps(s1, e1, s2, e2 TimeOfDay) bool {
	return s1 < e2 && e1 > s2
}
