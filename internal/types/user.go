package types

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of identity roles.
type Role string

const (
	RoleSystemAdmin Role = "SystemAdmin"
	RoleAdmin       Role = "Admin"
	RoleUser        Role = "User"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystemAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// User is the identity record owned by this service.
type User struct {
	ID            uuid.UUID `json:"id" example:"d290f1ee-6c54-4b01-90e6-d701748f0851"`
	Username      string    `json:"username" example:"johndoe"`
	Email         string    `json:"email" example:"john.doe@example.com"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role" example:"User"`
	IsActive      bool      `json:"is_active"`
	SecurityStamp *string   `json:"-"` // Rotated when credentials change; nil for legacy rows.
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsSystemAdmin reports whether the user carries the SystemAdmin role.
func (u *User) IsSystemAdmin() bool {
	return u != nil && u.Role == RoleSystemAdmin
}
