// Package app holds the application context: the current session, the
// gateways built for it and the todo cache keyed on it. Presentation code
// gets everything it needs from an *App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Makepad-fr/tada/internal/apierr"
	"github.com/Makepad-fr/tada/internal/cache"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/gateway"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/session"
	"github.com/Makepad-fr/tada/internal/store"
	"github.com/Makepad-fr/tada/internal/store/filestore"
	"github.com/Makepad-fr/tada/internal/store/sqlitestore"
	"github.com/Makepad-fr/tada/internal/token"
)

// ErrWatchUnsupported is returned by Watch when the storage backend cannot
// be watched for changes.
var ErrWatchUnsupported = errors.New("session watch needs the file backend")

// App is constructed once per process.
type App struct {
	cfg      *config.Config
	logs     *logging.Logger
	logger   *log.Logger
	kv       store.KV
	sessions *session.Store
	gwOpts   gateway.Options
	auth     *gateway.AuthGateway
	todos    *cache.Controller
	now      func() time.Time
	onChange func(cache.State)

	// fromEnv is set when the session came from TADA_TOKEN; it is never
	// persisted or watched.
	fromEnv bool
}

// Option configures an App.
type Option func(*App)

// WithHTTPClient sets the base HTTP client of every gateway.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) { a.gwOpts.HTTPClient = hc }
}

// WithStore replaces the configured storage backend.
func WithStore(kv store.KV) Option {
	return func(a *App) { a.kv = kv }
}

// WithClock sets the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithOnChange forwards every cache transition to fn.
func WithOnChange(fn func(cache.State)) Option {
	return func(a *App) { a.onChange = fn }
}

// New wires an App from cfg. logs may be nil to discard diagnostics. The
// caller must call Close.
func New(cfg *config.Config, logs *logging.Logger, opts ...Option) (*App, error) {
	if logs == nil {
		logs = logging.Discard()
	}
	a := &App{
		cfg:    cfg,
		logs:   logs,
		logger: logs.For("app"),
		now:    time.Now,
		gwOpts: gateway.Options{
			BaseURL: cfg.APIURL,
			Timeout: cfg.Timeout,
			Logger:  logs.For("gateway"),
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.kv == nil {
		kv, err := OpenStore(cfg)
		if err != nil {
			return nil, err
		}
		a.kv = kv
	}
	a.sessions = session.NewStore(a.kv, logs.For("session"))
	a.auth = gateway.NewAuthGateway(a.gwOpts, a.sessions)

	cacheOpts := []cache.Option{cache.WithLogger(logs.For("cache"))}
	if a.onChange != nil {
		cacheOpts = append(cacheOpts, cache.WithOnChange(a.onChange))
	}
	a.todos = cache.New(a.newTodoGateway, nil, cacheOpts...)
	return a, nil
}

// OpenStore opens the KV backend named by cfg.Storage.Backend.
func OpenStore(cfg *config.Config) (store.KV, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		kv, err := sqlitestore.Open(cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return kv, nil
	case config.BackendFile, "":
		return filestore.New(cfg.DataDir), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (a *App) newTodoGateway(bearer string) cache.Gateway {
	return gateway.NewTodoGateway(a.gwOpts, bearer)
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns a diagnostic logger tagged with component.
func (a *App) Logger(component string) *log.Logger { return a.logs.For(component) }

// Start restores the session: TADA_TOKEN when set, otherwise the persisted
// one. An expired persisted session is cleared.
func (a *App) Start(ctx context.Context) error {
	if raw := token.StripBearer(a.cfg.Token); raw != "" {
		sess, err := token.Session(raw, "")
		if err != nil {
			return fmt.Errorf("TADA_TOKEN: %w", err)
		}
		if sess.Expired(a.now()) {
			return errors.New("TADA_TOKEN: token expired")
		}
		a.fromEnv = true
		a.todos.SetSession(sess)
		a.logger.Printf("Using token from environment for %s", sess.ID)
		return nil
	}

	sess := a.sessions.Current(ctx)
	if sess != nil && sess.Expired(a.now()) {
		a.logger.Printf("Session for %s expired, clearing", sess.Email)
		a.sessions.Clear(ctx)
		sess = nil
	}
	a.todos.SetSession(sess)
	return nil
}

// Source names where the current session comes from: "env" for
// TADA_TOKEN, otherwise the storage backend.
func (a *App) Source() string {
	if a.fromEnv {
		return "env"
	}
	if a.cfg.Storage.Backend == "" {
		return config.BackendFile
	}
	return a.cfg.Storage.Backend
}

// Session returns the current identity, or nil.
func (a *App) Session() *model.Session { return a.todos.Session() }

// Todos returns the todo cache of the current session.
func (a *App) Todos() *cache.Controller { return a.todos }

// Login authenticates and switches the cache to the new identity.
func (a *App) Login(ctx context.Context, email, password string) (*model.Session, error) {
	sess, err := a.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.fromEnv = false
	a.todos.SetSession(sess)
	return sess, nil
}

// Register creates the user and switches the cache to it.
func (a *App) Register(ctx context.Context, email, password string) (*model.Session, error) {
	sess, err := a.auth.Register(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.fromEnv = false
	a.todos.SetSession(sess)
	return sess, nil
}

// Logout clears the persisted session and empties the cache.
func (a *App) Logout(ctx context.Context) {
	a.sessions.Clear(ctx)
	a.fromEnv = false
	a.todos.SetSession(nil)
}

// HandleError drops the session when err says the token was rejected. It
// reports whether it did.
func (a *App) HandleError(ctx context.Context, err error) bool {
	if !errors.Is(err, apierr.ErrUnauthorized) || a.Session() == nil {
		return false
	}
	a.logger.Printf("WARNING: token rejected, logging out")
	a.Logout(ctx)
	return true
}

// UploadPhoto uploads the image at path with the current token and returns
// its public URL.
func (a *App) UploadPhoto(ctx context.Context, path string) (string, error) {
	sess := a.Session()
	if sess == nil {
		return "", cache.ErrNoSession
	}
	return gateway.NewImageGateway(a.gwOpts, sess.Token, a.cfg.UploadTimeout).Upload(ctx, path)
}

// Watch follows the session file until ctx is done, switching the cache
// when another process logs in or out. Each switch is followed by a load.
func (a *App) Watch(ctx context.Context) error {
	fs, ok := a.kv.(*filestore.Store)
	if !ok || a.fromEnv {
		return ErrWatchUnsupported
	}
	w, err := session.NewWatcher(fs.Path(session.Key), a.logs.For("watch"))
	if err != nil {
		return err
	}
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.Errors():
			a.logger.Printf("WARNING: session watch: %v", err)
		case <-w.Changes():
			sess := a.sessions.Current(ctx)
			if model.SameIdentity(a.Session(), sess) {
				continue
			}
			a.logger.Printf("Session changed by another process")
			a.todos.SetSession(sess)
			a.todos.Load(ctx)
		}
	}
}

// Close stops the cache and releases the store.
func (a *App) Close() error {
	a.todos.Close()
	return a.kv.Close()
}
