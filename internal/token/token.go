// Package token decodes bearer token claims locally. Signatures are not
// verified; the server does that on every request.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Makepad-fr/tada/internal/model"
)

// ErrOpaque is returned for tokens that are not JWTs.
var ErrOpaque = errors.New("opaque token (cannot introspect locally)")

// Claims are the identity fields read from a token.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt *time.Time
	Raw       map[string]any
}

// StripBearer removes a leading "Bearer " scheme.
func StripBearer(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}

// Decode reads the claims of raw without verifying it.
func Decode(raw string) (*Claims, error) {
	raw = StripBearer(raw)
	if strings.Count(raw, ".") != 2 {
		return nil, ErrOpaque
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	c := &Claims{Raw: mc}
	c.Subject, _ = mc.GetSubject()
	if c.Subject == "" {
		// some backends put the user id in a custom claim
		for _, k := range []string{"id", "userId", "user_id"} {
			if v, ok := mc[k]; ok && v != nil {
				c.Subject = stringify(v)
				break
			}
		}
	}
	if v, ok := mc["email"].(string); ok {
		c.Email = model.NormalizeEmail(v)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		c.ExpiresAt = &t
	}
	return c, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%.0f", x)
	default:
		return fmt.Sprint(x)
	}
}

// Session builds a session from raw. fallbackEmail is used when the token
// carries no email claim.
func Session(raw, fallbackEmail string) (*model.Session, error) {
	c, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if c.Subject == "" {
		return nil, errors.New("token has no subject claim")
	}
	email := c.Email
	if email == "" {
		email = model.NormalizeEmail(fallbackEmail)
	}
	return &model.Session{
		ID:        c.Subject,
		Email:     email,
		Token:     StripBearer(raw),
		ExpiresAt: c.ExpiresAt,
	}, nil
}
