package model

import "time"

// Role is the marketplace role of the signed-in user.
type Role string

const (
	RoleCarOwner Role = "carowner"
	RoleWorkshop Role = "workshop"
)

// Session describes the signed-in user as read from the access token.
type Session struct {
	UserID     string
	Role       Role
	WorkshopID *int
	ExpiresAt  time.Time
}

// Authenticated reports whether the session belongs to a user whose token
// has not expired at now.
func (s *Session) Authenticated(now time.Time) bool {
	if s == nil || s.UserID == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}
