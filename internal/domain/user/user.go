package user

import (
	"errors"
	"strings"
	"time"
)

// the two roles the marketplace knows about. A person can hold both,
// but each (email, role) pair is a separate account.

const (
	RoleOwner    = "owner"
	RoleCustomer = "customer"
)

var ErrUserNotFound = errors.New("user not found")
var ErrEmailTaken = errors.New("email already registered for this role")

func IsValidRole(role string) bool {
	return role == RoleOwner || role == RoleCustomer
}

// NormalizeEmail keeps email uniqueness case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never expose hash in JSON
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	AvatarURL    string     `json:"avatarUrl,omitempty"`
	Confirmed    bool       `json:"confirmed"`
	FailedLogins int        `json:"-"`
	LockedUntil  *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsLockedOut reports whether the lockout window is still running at ref time.
func (u User) IsLockedOut(ref time.Time) bool {
	return u.LockedUntil != nil && ref.Before(*u.LockedUntil)
}

type UpdateProfileRequest struct {
	Name      string     `json:"name" binding:"required,min=2"`
	Phone     string     `json:"phone" binding:"max=32"`
	Address   string     `json:"address" binding:"max=255"`
	BirthDate *time.Time `json:"birthDate"`
	Gender    string     `json:"gender" binding:"omitempty,oneof=female male other"`
	AvatarURL string     `json:"avatarUrl" binding:"omitempty,url"`
}
