package models

import (
	"strings"
	"time"
)

// Role is the authorization role carried by a user account.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleStaff Role = "Staff"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff
}

// ParseRole accepts role names case-insensitively ("admin", "STAFF").
func ParseRole(s string) (Role, bool) {
	switch {
	case strings.EqualFold(s, string(RoleAdmin)):
		return RoleAdmin, true
	case strings.EqualFold(s, string(RoleStaff)):
		return RoleStaff, true
	}
	return "", false
}

// User represents an authenticated user in the system.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"size:255" json:"name"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"` // bcrypt hash, never exposed in JSON
	Role      Role      `gorm:"size:20;not null;default:'Staff'" json:"role"`

	Acknowledgments []Acknowledgment `gorm:"foreignKey:UserID" json:"-"`
}

// IsAdmin is a template convenience.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// DisplayName falls back to the email when no name was provisioned.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
