package auth

import "time"

type Role string

const (
	// RoleMember is a consumer managing their own disputes.
	RoleMember Role = "member"
	// RoleSupport can read any member's disputes when troubleshooting.
	RoleSupport Role = "support"
)

// User is the domain representation of an account. The dispute engine only
// ever sees its ID.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
// Self-registration always yields a member.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Claims is the verified identity carried by a token.
type Claims struct {
	UserID string
	Role   Role
}
