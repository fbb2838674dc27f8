package domain

import (
	"fmt"
	"strings"
	"time"
)

// UserRole differentiates employees, agents and administrators.
type UserRole string

const (
	UserRoleEmployee UserRole = "employee"
	UserRoleAgent    UserRole = "agent"
	UserRoleAdmin    UserRole = "admin"
)

// ParseUserRole maps any casing of a role onto its canonical value.
func ParseUserRole(raw string) (UserRole, error) {
	switch role := UserRole(strings.ToLower(strings.TrimSpace(raw))); role {
	case UserRoleEmployee, UserRoleAgent, UserRoleAdmin:
		return role, nil
	}
	return "", fmt.Errorf("unknown user role %q", raw)
}

// User is anyone who can sign in: ticket owners and agents alike.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         UserRole
	Department   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAgent reports whether the user can receive ticket assignments.
func (u *User) IsAgent() bool {
	return u != nil && u.Role == UserRoleAgent
}
