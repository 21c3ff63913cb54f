package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Makepad-fr/tada/internal/model"
)

const minPasswordLen = 6

type ctxKey struct{}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeCredentials(r *http.Request) (credentials, error) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		return c, errors.New("invalid JSON body")
	}
	c.Email = model.NormalizeEmail(c.Email)
	if c.Email == "" || !strings.Contains(c.Email, "@") {
		return c, errors.New("a valid email is required")
	}
	if len(c.Password) < minPasswordLen {
		return c, errors.New("password is too short")
	}
	return c, nil
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.mu.Lock()
	if _, ok := s.users[c.Email]; ok {
		s.mu.Unlock()
		respondError(w, http.StatusConflict, "user already exists")
		return
	}
	u := &user{id: uuid.NewString(), email: c.Email, hash: hash}
	s.users[c.Email] = u
	s.mu.Unlock()

	s.issue(w, http.StatusCreated, u)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	u, ok := s.users[c.Email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(c.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.issue(w, http.StatusOK, u)
}

func (s *Server) issue(w http.ResponseWriter, code int, u *user) {
	signed, err := s.Token(u.id, u.email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondData(w, code, map[string]string{"token": signed})
}

// Token signs a token for the user id and email. Tests use it to mint tokens
// for users that were never registered.
func (s *Server) Token(id, email string) (string, error) {
	now := s.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	})
	return t.SignedString(s.secret)
}

// authenticate rejects requests without a valid bearer token and stores the
// user id in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			respondError(w, http.StatusUnauthorized, "missing token")
			return
		}
		var c claims
		_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
		if err != nil || c.Subject == "" {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, c.Subject)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}
