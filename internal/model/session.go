package model

import (
	"strings"
	"time"
)

// Session is the authenticated identity and bearer token of the current user.
type Session struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`

	// ExpiresAt comes from the token's exp claim when present.
	ExpiresAt *time.Time `json:"-"`
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Valid reports whether every identity field is present.
func (s *Session) Valid() bool {
	if s == nil {
		return false
	}
	return strings.TrimSpace(s.ID) != "" &&
		NormalizeEmail(s.Email) != "" &&
		strings.TrimSpace(s.Token) != ""
}

// Expired reports whether the token expiry is known and has passed.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return !now.Before(*s.ExpiresAt)
}

// SameIdentity reports whether a and b carry the same token. Two nil
// sessions are the same identity.
func SameIdentity(a, b *Session) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Token == b.Token
}
