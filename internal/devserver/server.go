// Package devserver is an in-memory implementation of the todo backend API.
// It backs the end-to-end tests and the "todo devserver" command; nothing is
// persisted across restarts.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Makepad-fr/tada/internal/model"
)

// TokenTTL is the lifetime of issued tokens.
const TokenTTL = 24 * time.Hour

type user struct {
	id    string
	email string
	hash  []byte
}

type image struct {
	contentType string
	data        []byte
}

// Server holds users, their todos and uploaded images.
type Server struct {
	secret []byte
	logger *log.Logger
	now    func() time.Time

	mu     sync.Mutex
	users  map[string]*user // by email
	todos  map[string][]model.Todo
	images map[string]image
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock sets the time source for timestamps and token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New returns an empty server signing tokens with secret.
func New(secret []byte, opts ...Option) *Server {
	s := &Server{
		secret: secret,
		now:    time.Now,
		users:  make(map[string]*user),
		todos:  make(map[string][]model.Todo),
		images: make(map[string]image),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "[devserver] ", log.LstdFlags)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Post("/auth/register", s.register)
	r.Post("/auth/login", s.login)
	r.Get("/images/{key}", s.getImage)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/todos", s.listTodos)
		r.Post("/todos", s.createTodo)
		r.Patch("/todos/{id}", s.patchTodo)
		r.Delete("/todos/{id}", s.deleteTodo)
		r.Post("/images", s.uploadImage)
	})
	return r
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Printf("Listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, code int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(env)
}

func respondData(w http.ResponseWriter, code int, data any) {
	respondJSON(w, code, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, envelope{Message: message})
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
