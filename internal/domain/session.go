package domain

import "time"

// Role represents the kind of account behind a session.
type Role string

const (
	RoleGuardian Role = "GUARDIAN"
	RoleDriver   Role = "DRIVER"
)

// Session links an opaque token to an authenticated identity.
type Session struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
