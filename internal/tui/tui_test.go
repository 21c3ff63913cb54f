package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Makepad-fr/tada/internal/apierr"
	"github.com/Makepad-fr/tada/internal/cache"
	"github.com/Makepad-fr/tada/internal/model"
)

// memGateway is a remote collection kept in memory.
type memGateway struct {
	mu     sync.Mutex
	todos  []model.Todo
	next   int
	failOn string
	err    error
}

func (g *memGateway) fail(op string) error {
	if g.failOn == op {
		return g.err
	}
	return nil
}

func (g *memGateway) List(context.Context) ([]model.Todo, int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("list"); err != nil {
		return nil, 0, err
	}
	return append([]model.Todo(nil), g.todos...), len(g.todos), nil
}

func (g *memGateway) Create(_ context.Context, in model.NewTodo) (model.Todo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("create"); err != nil {
		return model.Todo{}, err
	}
	g.next++
	t := model.Todo{ID: fmt.Sprintf("t%d", g.next), Title: in.Title, PhotoURI: in.PhotoURI, Location: in.Location}
	g.todos = append(g.todos, t)
	return t, nil
}

func (g *memGateway) ToggleCompleted(_ context.Context, id string, completed bool) (model.Todo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("toggle"); err != nil {
		return model.Todo{}, err
	}
	for i := range g.todos {
		if g.todos[i].ID == id {
			g.todos[i].Completed = completed
			return g.todos[i], nil
		}
	}
	return model.Todo{}, &apierr.ServerError{Status: 404}
}

func (g *memGateway) Update(_ context.Context, id string, in model.TodoUpdate) (model.Todo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.todos {
		if g.todos[i].ID == id {
			g.todos[i].Title = in.Title
			return g.todos[i], nil
		}
	}
	return model.Todo{}, &apierr.ServerError{Status: 404}
}

func (g *memGateway) Delete(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("delete"); err != nil {
		return err
	}
	for i := range g.todos {
		if g.todos[i].ID == id {
			g.todos = append(g.todos[:i], g.todos[i+1:]...)
			return nil
		}
	}
	return &apierr.ServerError{Status: 404}
}

func setupModel(t *testing.T, g *memGateway, opts Options) (Model, *cache.Controller) {
	t.Helper()
	ctl := cache.New(func(string) cache.Gateway { return g },
		&model.Session{ID: "u1", Email: "a@example.com", Token: "tok"},
		cache.WithLogger(log.New(io.Discard, "", 0)))
	m := New(context.Background(), ctl, opts)
	m = pump(t, m, m.loadCmd())
	return m, ctl
}

// pump runs cmd and feeds controller results back into the model.
func pump(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	msg := cmd()
	switch msg.(type) {
	case stateMsg, opMsg:
		next, _ := m.Update(msg)
		return next.(Model)
	}
	return m
}

func press(t *testing.T, m Model, k tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(k)
	return pump(t, next.(Model), cmd)
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var (
	space = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
)

func TestListShowsLoadedTodos(t *testing.T) {
	g := &memGateway{todos: []model.Todo{{ID: "1", Title: "Buy milk"}, {ID: "2", Title: "Walk dog"}}}
	m, _ := setupModel(t, g, Options{})

	if n := len(m.list.Items()); n != 2 {
		t.Fatalf("list has %d items, want 2", n)
	}
	if m.state.Phase != cache.PhaseReady {
		t.Errorf("Phase = %v", m.state.Phase)
	}
}

func TestToggleGoesThroughController(t *testing.T) {
	g := &memGateway{todos: []model.Todo{{ID: "1", Title: "Buy milk"}}}
	m, ctl := setupModel(t, g, Options{})

	m = press(t, m, space)
	if !ctl.Snapshot().Todos[0].Completed {
		t.Fatal("toggle did not reach the cache")
	}
	if it := m.list.Items()[0].(todoItem); !it.todo.Completed {
		t.Error("list not redrawn after toggle")
	}
	if m.status != "toggled" {
		t.Errorf("status = %q", m.status)
	}
}

func TestAddAndEdit(t *testing.T) {
	g := &memGateway{}
	m, ctl := setupModel(t, g, Options{})

	m = press(t, m, runes("a"))
	if m.mode != modeAdd {
		t.Fatal("expected add mode")
	}
	m.ti.SetValue("Buy milk")
	m = press(t, m, enter)
	if m.mode != modeList {
		t.Error("input stayed open")
	}
	s := ctl.Snapshot()
	if len(s.Todos) != 1 || s.Todos[0].Title != "Buy milk" {
		t.Fatalf("unexpected cache %+v", s.Todos)
	}

	m = press(t, m, runes("e"))
	if m.ti.Value() != "Buy milk" {
		t.Errorf("edit prefilled with %q", m.ti.Value())
	}
	m.ti.SetValue("Buy oat milk")
	m = press(t, m, enter)
	if got := ctl.Snapshot().Todos[0].Title; got != "Buy oat milk" {
		t.Errorf("title = %q", got)
	}
}

func TestEmptyTitleStaysInInput(t *testing.T) {
	g := &memGateway{}
	m, ctl := setupModel(t, g, Options{})

	m = press(t, m, runes("a"))
	m = press(t, m, enter)
	if m.mode != modeAdd {
		t.Error("empty title closed the input")
	}
	if m.state.LastError == "" {
		t.Error("expected a validation message")
	}
	if len(ctl.Snapshot().Todos) != 0 {
		t.Error("empty title reached the cache")
	}
}

func TestDeleteAndUndo(t *testing.T) {
	g := &memGateway{todos: []model.Todo{{ID: "1", Title: "Buy milk", PhotoURI: "https://cdn/p.jpg"}}}
	m, ctl := setupModel(t, g, Options{})

	m = press(t, m, runes("d"))
	if n := len(ctl.Snapshot().Todos); n != 0 {
		t.Fatalf("cache has %d todos after delete", n)
	}
	m = press(t, m, runes("u"))
	s := ctl.Snapshot()
	if len(s.Todos) != 1 || s.Todos[0].Title != "Buy milk" || s.Todos[0].PhotoURI != "https://cdn/p.jpg" {
		t.Fatalf("undo did not restore: %+v", s.Todos)
	}
	if s.Todos[0].ID == "1" {
		t.Error("restored todo should get a server-assigned id")
	}
	if m.undo != nil {
		t.Error("undo is single-level")
	}
}

func TestFailedDeleteCannotBeUndone(t *testing.T) {
	g := &memGateway{todos: []model.Todo{{ID: "1", Title: "Buy milk"}}, failOn: "delete", err: &apierr.ServerError{Status: 500}}
	m, ctl := setupModel(t, g, Options{})

	m = press(t, m, runes("d"))
	if m.undo != nil {
		t.Fatal("undo armed for a delete the server rejected")
	}
	m = press(t, m, runes("u"))
	if n := len(ctl.Snapshot().Todos); n != 1 {
		t.Errorf("cache has %d todos, want 1", n)
	}
	if n := len(g.todos); n != 1 {
		t.Errorf("server has %d todos, want 1", n)
	}
}

func TestUnauthorizedLoadEndsSession(t *testing.T) {
	g := &memGateway{failOn: "list", err: apierr.ErrUnauthorized}
	ctl := cache.New(func(string) cache.Gateway { return g },
		&model.Session{ID: "u1", Email: "a@example.com", Token: "tok"},
		cache.WithLogger(log.New(io.Discard, "", 0)))
	m := New(context.Background(), ctl, Options{HandleError: func(err error) bool {
		return errors.Is(err, apierr.ErrUnauthorized)
	}})

	msg := m.loadCmd()()
	if _, ok := msg.(opMsg); !ok {
		t.Fatalf("load produced %T, want opMsg", msg)
	}
	next, cmd := m.Update(msg)
	m = next.(Model)
	if !m.Expired() {
		t.Error("expected the list to report an expired session")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit")
	}
}

func TestUnauthorizedEndsSession(t *testing.T) {
	g := &memGateway{todos: []model.Todo{{ID: "1", Title: "Buy milk"}}, failOn: "toggle", err: apierr.ErrUnauthorized}
	var handled error
	m, _ := setupModel(t, g, Options{HandleError: func(err error) bool {
		handled = err
		return errors.Is(err, apierr.ErrUnauthorized)
	}})

	next, cmd := m.Update(space)
	m = next.(Model)
	next, cmd = m.Update(cmd())
	m = next.(Model)
	if !errors.Is(handled, apierr.ErrUnauthorized) {
		t.Fatalf("HandleError got %v", handled)
	}
	if !m.Expired() {
		t.Error("expected the list to report an expired session")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit")
	}
}

func TestFailureShowsError(t *testing.T) {
	g := &memGateway{todos: []model.Todo{{ID: "1", Title: "Buy milk"}}, failOn: "toggle", err: &apierr.ServerError{Status: 500}}
	m, _ := setupModel(t, g, Options{})

	m = press(t, m, space)
	if m.state.LastError != apierr.StatusMessage(500) {
		t.Errorf("LastError = %q", m.state.LastError)
	}
	if m.Expired() {
		t.Error("server errors must not end the session")
	}
}

func TestGroupPutsPendingFirst(t *testing.T) {
	g := &memGateway{todos: []model.Todo{{ID: "1", Title: "done", Completed: true}, {ID: "2", Title: "open"}}}
	m, _ := setupModel(t, g, Options{Group: true})

	if first := m.list.Items()[0].(todoItem); first.todo.ID != "2" {
		t.Errorf("first item = %s, want the pending todo", first.todo.ID)
	}
}

func TestExternalUpdatesRedraw(t *testing.T) {
	updates := make(chan struct{}, 1)
	g := &memGateway{}
	m, ctl := setupModel(t, g, Options{Updates: updates})

	g.todos = append(g.todos, model.Todo{ID: "x", Title: "from elsewhere"})
	ctl.Load(context.Background())
	updates <- struct{}{}

	m = pump(t, m, m.waitCmd())
	if n := len(m.list.Items()); n != 1 {
		t.Errorf("list has %d items after external update", n)
	}
}
