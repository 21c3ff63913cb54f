package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/Makepad-fr/tada/internal/apierr"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/token"
)

// MinPasswordLen is the shortest password accepted before any request.
const MinPasswordLen = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SessionSaver persists a session after login or register.
type SessionSaver interface {
	Save(ctx context.Context, s *model.Session)
}

// AuthGateway exchanges credentials for a session.
type AuthGateway struct {
	c        *client
	sessions SessionSaver
}

// NewAuthGateway returns a gateway that persists successful sessions through
// sessions. A nil saver skips persistence.
func NewAuthGateway(opts Options, sessions SessionSaver) *AuthGateway {
	base := opts.baseClient()
	hc := &http.Client{Transport: base.Transport, Timeout: opts.timeout()}
	return &AuthGateway{c: newClient(opts, hc), sessions: sessions}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenData struct {
	Token string `json:"token"`
}

// ValidateCredentials checks email and password shape.
func ValidateCredentials(email, password string) error {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return apierr.Validation("enter a valid email address")
	}
	if password == "" {
		return apierr.Validation("password is required")
	}
	if len(password) < MinPasswordLen {
		return apierr.Validation("password must be at least %d characters", MinPasswordLen)
	}
	return nil
}

// Login authenticates an existing user.
func (g *AuthGateway) Login(ctx context.Context, email, password string) (*model.Session, error) {
	return g.exchange(ctx, "/auth/login", email, password, http.StatusUnauthorized, apierr.ErrInvalidCredentials)
}

// Register creates a user and logs it in.
func (g *AuthGateway) Register(ctx context.Context, email, password string) (*model.Session, error) {
	return g.exchange(ctx, "/auth/register", email, password, http.StatusConflict, apierr.ErrUserExists)
}

// exchange posts credentials; a response with status special maps to
// specialErr.
func (g *AuthGateway) exchange(ctx context.Context, path, email, password string, special int, specialErr error) (*model.Session, error) {
	if err := ValidateCredentials(email, password); err != nil {
		return nil, err
	}
	email = model.NormalizeEmail(email)

	resp, err := g.c.send(ctx, http.MethodPost, path, credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if resp.status == special {
		return nil, specialErr
	}
	if !resp.ok() {
		return nil, resp.serverError()
	}

	var env envelope
	var data tokenData
	if err := json.Unmarshal(resp.body, &env); err != nil || len(env.Data) == 0 {
		return nil, resp.invalid()
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || strings.TrimSpace(data.Token) == "" {
		return nil, &apierr.ServerError{Status: resp.status, Detail: "missing token"}
	}

	sess, err := token.Session(data.Token, email)
	if err != nil {
		return nil, &apierr.ServerError{Status: resp.status, Detail: "malformed token: " + err.Error()}
	}
	if g.sessions != nil {
		g.sessions.Save(ctx, sess)
	}
	g.c.logger.Printf("Authenticated %s via %s", sess.Email, path)
	return sess, nil
}
