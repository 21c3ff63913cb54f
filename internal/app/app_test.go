package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Makepad-fr/tada/internal/apierr"
	"github.com/Makepad-fr/tada/internal/cache"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/devserver"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/session"
	"github.com/Makepad-fr/tada/internal/store/filestore"
)

func setupBackend(t *testing.T) (*devserver.Server, *httptest.Server) {
	t.Helper()
	srv := devserver.New([]byte("test-secret"), devserver.WithLogger(log.New(io.Discard, "", 0)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func testConfig(t *testing.T, apiURL, dir string) *config.Config {
	t.Helper()
	return &config.Config{
		APIURL:        apiURL,
		Timeout:       5 * time.Second,
		UploadTimeout: 5 * time.Second,
		DataDir:       dir,
		Storage:       config.Storage{Backend: config.BackendFile},
	}
}

func setupApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	a, err := New(cfg, nil, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return a
}

func TestRegisterCreateAndRestore(t *testing.T) {
	_, ts := setupBackend(t)
	dir := t.TempDir()
	ctx := context.Background()

	a := setupApp(t, testConfig(t, ts.URL, dir))
	if a.Session() != nil {
		t.Fatal("expected no session on a fresh data dir")
	}
	sess, err := a.Register(ctx, " Ana@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if sess.Email != "ana@example.com" || sess.ID == "" {
		t.Errorf("unexpected session %+v", sess)
	}

	todos := a.Todos()
	todos.Load(ctx)
	if _, err := todos.Create(ctx, model.NewTodo{Title: "Buy milk"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := todos.Create(ctx, model.NewTodo{Title: "Walk dog"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	first := todos.Snapshot().Todos[0]
	if _, err := todos.Toggle(ctx, first.ID); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	b := setupApp(t, testConfig(t, ts.URL, dir))
	if b.Session() == nil || b.Session().ID != sess.ID {
		t.Fatalf("session not restored: %+v", b.Session())
	}
	b.Todos().Load(ctx)
	s := b.Todos().Snapshot()
	if s.Count != 2 || len(s.Completed()) != 1 || len(s.Active()) != 1 {
		t.Errorf("unexpected restored state %+v", s)
	}
}

func TestLogoutEmptiesCache(t *testing.T) {
	_, ts := setupBackend(t)
	dir := t.TempDir()
	ctx := context.Background()

	a := setupApp(t, testConfig(t, ts.URL, dir))
	if _, err := a.Register(ctx, "ana@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	a.Todos().Load(ctx)
	_, _ = a.Todos().Create(ctx, model.NewTodo{Title: "x"})

	a.Logout(ctx)
	if a.Session() != nil {
		t.Error("session survived logout")
	}
	if s := a.Todos().Snapshot(); len(s.Todos) != 0 || s.Count != 0 {
		t.Errorf("cache survived logout: %+v", s)
	}
	if _, err := os.Stat(filepath.Join(dir, session.Key+".json")); !os.IsNotExist(err) {
		t.Errorf("session file still present: %v", err)
	}
}

func TestSwitchingUsersDoesNotLeak(t *testing.T) {
	_, ts := setupBackend(t)
	ctx := context.Background()
	a := setupApp(t, testConfig(t, ts.URL, t.TempDir()))

	if _, err := a.Register(ctx, "a@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	a.Todos().Load(ctx)
	_, _ = a.Todos().Create(ctx, model.NewTodo{Title: "a's todo"})

	if _, err := a.Register(ctx, "b@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	if n := len(a.Todos().Snapshot().Todos); n != 0 {
		t.Fatalf("b sees %d cached todos", n)
	}
	a.Todos().Load(ctx)
	if n := len(a.Todos().Snapshot().Todos); n != 0 {
		t.Errorf("b loaded %d todos", n)
	}

	if _, err := a.Login(ctx, "a@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	a.Todos().Load(ctx)
	if s := a.Todos().Snapshot(); len(s.Todos) != 1 || s.Todos[0].Title != "a's todo" {
		t.Errorf("a's todos after switching back: %+v", s.Todos)
	}
}

func TestLoginFailures(t *testing.T) {
	_, ts := setupBackend(t)
	ctx := context.Background()
	a := setupApp(t, testConfig(t, ts.URL, t.TempDir()))
	if _, err := a.Register(ctx, "ana@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Register(ctx, "ana@example.com", "secret1"); !errors.Is(err, apierr.ErrUserExists) {
		t.Errorf("duplicate register: %v", err)
	}
	if _, err := a.Login(ctx, "ana@example.com", "wrong-password"); !errors.Is(err, apierr.ErrInvalidCredentials) {
		t.Errorf("bad password: %v", err)
	}
	if _, err := a.Login(ctx, "not-an-email", "secret1"); !apierr.IsValidation(err) {
		t.Errorf("bad email: %v", err)
	}
	if a.Session() == nil {
		t.Error("failed login dropped the existing session")
	}
}

func TestStartClearsExpiredSession(t *testing.T) {
	srv, ts := setupBackend(t)
	dir := t.TempDir()
	ctx := context.Background()

	raw, err := srv.Token("u1", "ana@example.com")
	if err != nil {
		t.Fatal(err)
	}
	sessions := session.NewStore(filestore.New(dir), log.New(io.Discard, "", 0))
	sessions.Save(ctx, &model.Session{ID: "u1", Email: "ana@example.com", Token: raw})

	later := func() time.Time { return time.Now().Add(2 * devserver.TokenTTL) }
	a := setupApp(t, testConfig(t, ts.URL, dir), WithClock(later))
	if a.Session() != nil {
		t.Fatal("expired session was restored")
	}
	if sessions.Current(ctx) != nil {
		t.Error("expired session was not cleared")
	}
}

func TestTokenOverride(t *testing.T) {
	srv, ts := setupBackend(t)
	ctx := context.Background()
	raw, _ := srv.Token("u1", "ana@example.com")

	cfg := testConfig(t, ts.URL, t.TempDir())
	cfg.Token = "Bearer " + raw
	a := setupApp(t, cfg)

	sess := a.Session()
	if sess == nil || sess.ID != "u1" || sess.Token != raw {
		t.Fatalf("unexpected session %+v", sess)
	}
	a.Todos().Load(ctx)
	if s := a.Todos().Snapshot(); s.LastError != "" || s.Phase != cache.PhaseReady {
		t.Errorf("load with override failed: %+v", s)
	}
	if err := a.Watch(ctx); !errors.Is(err, ErrWatchUnsupported) {
		t.Errorf("Watch = %v, want ErrWatchUnsupported", err)
	}
}

func TestTokenOverrideRejectsGarbage(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", t.TempDir())
	cfg.Token = "opaque"
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if err := a.Start(context.Background()); err == nil {
		t.Error("expected Start to reject an undecodable token")
	}
}

func TestHandleErrorForcesLogout(t *testing.T) {
	_, ts := setupBackend(t)
	ctx := context.Background()

	// a token signed by another backend is rejected with 401
	foreign := devserver.New([]byte("other-secret"))
	raw, _ := foreign.Token("u1", "ana@example.com")
	dir := t.TempDir()
	sessions := session.NewStore(filestore.New(dir), log.New(io.Discard, "", 0))
	sessions.Save(ctx, &model.Session{ID: "u1", Email: "ana@example.com", Token: raw})

	a := setupApp(t, testConfig(t, ts.URL, dir))
	a.Todos().Load(ctx)
	if s := a.Todos().Snapshot(); s.LastError != apierr.StatusMessage(401) {
		t.Errorf("LastError = %q", s.LastError)
	}

	_, err := a.Todos().Create(ctx, model.NewTodo{Title: "x"})
	if !errors.Is(err, apierr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !a.HandleError(ctx, err) {
		t.Fatal("expected forced logout")
	}
	if a.Session() != nil || sessions.Current(ctx) != nil {
		t.Error("session survived forced logout")
	}
	if a.HandleError(ctx, err) {
		t.Error("second HandleError should be a no-op")
	}
	if a.HandleError(ctx, &apierr.ServerError{Status: 500}) {
		t.Error("non-auth errors must not log out")
	}
}

func TestUploadPhoto(t *testing.T) {
	_, ts := setupBackend(t)
	ctx := context.Background()
	a := setupApp(t, testConfig(t, ts.URL, t.TempDir()))

	path := filepath.Join(t.TempDir(), "cat.jpg")
	if err := os.WriteFile(path, []byte("\xff\xd8\xff fake jpeg"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := a.UploadPhoto(ctx, path); !errors.Is(err, cache.ErrNoSession) {
		t.Errorf("upload without session: %v", err)
	}

	if _, err := a.Register(ctx, "ana@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	url, err := a.UploadPhoto(ctx, path)
	if err != nil {
		t.Fatalf("UploadPhoto failed: %v", err)
	}
	a.Todos().Load(ctx)
	td, err := a.Todos().Create(ctx, model.NewTodo{Title: "with photo", PhotoURI: url})
	if err != nil {
		t.Fatal(err)
	}
	if td.PhotoURI != url {
		t.Errorf("PhotoURI = %q, want %q", td.PhotoURI, url)
	}
}

func TestSQLiteBackend(t *testing.T) {
	_, ts := setupBackend(t)
	dir := t.TempDir()
	ctx := context.Background()
	cfg := testConfig(t, ts.URL, dir)
	cfg.Storage.Backend = config.BackendSQLite

	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	sess, err := a.Register(ctx, "ana@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Watch(ctx); !errors.Is(err, ErrWatchUnsupported) {
		t.Errorf("Watch = %v, want ErrWatchUnsupported", err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	b := setupApp(t, cfg)
	if b.Session() == nil || b.Session().ID != sess.ID {
		t.Errorf("session not restored from sqlite: %+v", b.Session())
	}
}

func TestWatchFollowsOtherProcess(t *testing.T) {
	_, ts := setupBackend(t)
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := setupApp(t, testConfig(t, ts.URL, dir))
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx) }()
	// give the watcher time to install
	time.Sleep(100 * time.Millisecond)

	other := setupApp(t, testConfig(t, ts.URL, dir))
	sess, err := other.Register(ctx, "ana@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cur := a.Session(); cur != nil && cur.ID == sess.ID {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if cur := a.Session(); cur == nil || cur.ID != sess.ID {
		t.Fatalf("watcher did not pick up the new session: %+v", cur)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
