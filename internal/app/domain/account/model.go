package account

import (
	"strings"
	"time"
)

// Role is the coarse permission class of a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// User is an account that can sign in to the API.
type User struct {
	ID             int64      `json:"id" db:"id"`
	Email          string     `json:"email" db:"email"`
	FullName       string     `json:"full_name" db:"full_name"`
	Role           Role       `json:"role" db:"role"`
	PhoneNumber    string     `json:"phone_number" db:"phone_number"`
	ProfilePicture string     `json:"profile_picture" db:"profile_picture"`
	DateJoined     time.Time  `json:"date_joined" db:"date_joined"`
	LastLogin      *time.Time `json:"last_login" db:"last_login"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	IsStaff        bool       `json:"is_staff" db:"is_staff"`
	IsSuperuser    bool       `json:"is_superuser" db:"is_superuser"`
	PasswordHash   string     `json:"-" db:"password_hash"`
}

// IsAdmin reports whether the user may see every tenant's data.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.IsSuperuser
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID      int64
	Email       string
	Role        Role
	IsSuperuser bool
}

// PrincipalOf returns the principal view of u.
func PrincipalOf(u User) Principal {
	return Principal{UserID: u.ID, Email: u.Email, Role: u.Role, IsSuperuser: u.IsSuperuser}
}

// IsAdmin mirrors User.IsAdmin.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.IsSuperuser
}

// CanAccess reports whether the principal may act on a resource owned by ownerID.
func (p Principal) CanAccess(ownerID int64) bool {
	return p.IsAdmin() || p.UserID == ownerID
}

// ScopeOwner returns the owner id list queries are restricted to; zero means
// no restriction.
func (p Principal) ScopeOwner() int64 {
	if p.IsAdmin() {
		return 0
	}
	return p.UserID
}

// NormalizeEmail lowercases the domain part and trims whitespace.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// Filter selects users for admin listings.
type Filter struct {
	Role     Role
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}
