package models

import "time"

// UserRole represents the closed set of roles known to the permission table.
type UserRole string

const (
	RoleAdmin        UserRole = "ADMIN"
	RoleHeadteacher  UserRole = "HEADTEACHER"
	RoleClassTeacher UserRole = "CLASS_TEACHER"
	RoleSecretary    UserRole = "SECRETARY"
	RoleParent       UserRole = "PARENT"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleHeadteacher, RoleClassTeacher, RoleSecretary, RoleParent:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	Role         UserRole  `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// UserFilter defines filter criteria for listing users.
type UserFilter struct {
	Role     UserRole
	Active   *bool
	Page     int
	PageSize int
}
