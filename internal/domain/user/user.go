package user

import (
	"github.com/google/uuid"
)

// Role is the coarse authorization role carried by a principal
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleFaculty Role = "FACULTY"
	RoleAdmin   Role = "ADMIN"
)

// Principal is an authenticated identity as resolved by the identity provider.
// Registration only reads ID and ProgramID; the rest feeds notifications.
type Principal struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	ProgramID *uuid.UUID `json:"program_id,omitempty"`
	Role      Role       `json:"role"`
}

// IsAdmin reports whether the principal may manage sessions
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsValid validates the principal data
func (p *Principal) IsValid() bool {
	return p.ID != uuid.Nil && p.Email != "" && p.Role != ""
}
