// Package cache owns the in-memory todo list of the current session and keeps
// it in step with the remote collection.
//
// Mutations are confirmed by the server before they touch the cache, and the
// server's returned record always replaces the local one. A failed load
// leaves the cache empty rather than stale. The mutex is never held across a
// remote call: each operation reads what it needs, calls the gateway, then
// applies its result to the latest state in one step.
package cache

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"

	"github.com/Makepad-fr/tada/internal/apierr"
	"github.com/Makepad-fr/tada/internal/model"
)

var (
	// ErrNoSession is returned by mutations when no session is active.
	ErrNoSession = errors.New("no active session")
	// ErrClosed is returned by operations started after Close.
	ErrClosed = errors.New("cache closed")
)

// Gateway is the remote todo collection of one session.
type Gateway interface {
	List(ctx context.Context) ([]model.Todo, int, error)
	Create(ctx context.Context, in model.NewTodo) (model.Todo, error)
	ToggleCompleted(ctx context.Context, id string, completed bool) (model.Todo, error)
	Update(ctx context.Context, id string, in model.TodoUpdate) (model.Todo, error)
	Delete(ctx context.Context, id string) error
}

// GatewayFactory builds the gateway for a bearer token.
type GatewayFactory func(bearer string) Gateway

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the diagnostic logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithOnChange registers fn to be called after every state transition. fn
// runs outside the controller lock and may call Snapshot.
func WithOnChange(fn func(State)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller is the todo cache of the current session.
type Controller struct {
	newGateway GatewayFactory
	logger     *log.Logger
	onChange   func(State)

	mu      sync.Mutex
	session *model.Session
	gw      Gateway
	// gen changes with every identity switch; results of calls started
	// under an older generation are dropped.
	gen    uint64
	closed bool
	state  State
}

// New returns a controller for sess, which may be nil.
func New(factory GatewayFactory, sess *model.Session, opts ...Option) *Controller {
	c := &Controller{
		newGateway: factory,
		state:      State{Todos: []model.Todo{}, Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	c.session, c.gw = c.bind(sess)
	return c
}

func (c *Controller) bind(sess *model.Session) (*model.Session, Gateway) {
	if sess == nil || sess.Token == "" {
		return nil, nil
	}
	return sess, c.newGateway(sess.Token)
}

// Session returns the identity the cache is keyed on.
func (c *Controller) Session() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetSession switches the cache to sess. A different identity empties the
// cache and discards results of operations still in flight for the old one.
func (c *Controller) SetSession(sess *model.Session) {
	c.mu.Lock()
	if model.SameIdentity(c.session, sess) {
		if sess != nil {
			c.session = sess
		}
		c.mu.Unlock()
		return
	}
	c.gen++
	c.session, c.gw = c.bind(sess)
	c.state = State{Todos: []model.Todo{}, Phase: PhaseIdle}
	snap := c.state.clone()
	c.mu.Unlock()

	c.logger.Printf("Session changed, cache reset")
	c.notify(snap)
}

// Close stops the controller from applying further results. Calls in flight
// still complete remotely.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Controller) notify(s State) {
	if c.onChange != nil {
		c.onChange(s)
	}
}

// begin runs fn on the state and returns the gateway and generation the
// operation runs under.
func (c *Controller) begin(fn func(*State)) (Gateway, uint64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, 0, ErrClosed
	}
	gw, gen := c.gw, c.gen
	fn(&c.state)
	snap := c.state.clone()
	c.mu.Unlock()

	c.notify(snap)
	return gw, gen, nil
}

// errSkip tells beginMutation's caller the operation is a no-op.
var errSkip = errors.New("skip")

// beginMutation is begin for operations that need a session. If fn returns
// false the state is left untouched and errSkip is returned.
func (c *Controller) beginMutation(fn func(*State) bool) (Gateway, uint64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, 0, ErrClosed
	}
	if c.gw == nil {
		c.mu.Unlock()
		return nil, 0, ErrNoSession
	}
	gw, gen := c.gw, c.gen
	if !fn(&c.state) {
		c.mu.Unlock()
		return nil, 0, errSkip
	}
	snap := c.state.clone()
	c.mu.Unlock()

	c.notify(snap)
	return gw, gen, nil
}

// commit applies fn if the controller is still live and on generation gen.
func (c *Controller) commit(gen uint64, fn func(*State)) bool {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return false
	}
	fn(&c.state)
	snap := c.state.clone()
	c.mu.Unlock()

	c.notify(snap)
	return true
}

func clearError(s *State) bool {
	s.LastError, s.Err = "", nil
	return true
}

// fail records err without touching the list.
func (c *Controller) fail(gen uint64, op string, err error) {
	c.logger.Printf("%s failed: %v", op, err)
	c.commit(gen, func(s *State) { s.LastError, s.Err = apierr.Message(err), err })
}

// Load fetches the remote list and replaces the cache with it. Without a
// session the cache settles empty. On failure the cache is emptied and the
// error is recorded, never returned.
func (c *Controller) Load(ctx context.Context) {
	gw, gen, err := c.begin(func(s *State) {
		clearError(s)
		s.IsLoading = true
		s.Phase = PhaseLoading
	})
	if err != nil {
		return
	}

	if gw == nil {
		c.commit(gen, func(s *State) {
			*s = State{Todos: []model.Todo{}, Phase: PhaseReady}
		})
		return
	}

	items, count, err := gw.List(ctx)
	if err != nil {
		c.logger.Printf("load failed: %v", err)
		c.commit(gen, func(s *State) {
			*s = State{Todos: []model.Todo{}, Phase: PhaseReady, LastError: apierr.Message(err), Err: err}
		})
		return
	}

	items = dedupe(items)
	if count < 0 {
		count = len(items)
	}
	if c.commit(gen, func(s *State) {
		*s = State{Todos: items, Count: count, Phase: PhaseReady}
	}) {
		c.logger.Printf("Loaded %d todos (count=%d)", len(items), count)
	}
}

// Reload revalidates the cache against the server. It is Load under the name
// presentation code uses after returning from an edit or create flow.
func (c *Controller) Reload(ctx context.Context) {
	c.Load(ctx)
}

// Create adds a todo remotely and appends the server's record. On failure
// the list is unchanged and the error is both recorded and returned.
func (c *Controller) Create(ctx context.Context, in model.NewTodo) (model.Todo, error) {
	gw, gen, err := c.beginMutation(clearError)
	if err != nil {
		return model.Todo{}, err
	}

	t, err := gw.Create(ctx, in)
	if err != nil {
		c.fail(gen, "create", err)
		return model.Todo{}, err
	}

	c.commit(gen, func(s *State) {
		if i := indexOf(s.Todos, t.ID); i >= 0 {
			s.Todos[i] = t
			return
		}
		s.Todos = append(s.Todos, t)
		s.Count++
	})
	return t, nil
}

// Delete removes a todo once the server confirms it.
func (c *Controller) Delete(ctx context.Context, id string) error {
	gw, gen, err := c.beginMutation(clearError)
	if err != nil {
		return err
	}

	if err := gw.Delete(ctx, id); err != nil {
		c.fail(gen, "delete", err)
		return err
	}

	c.commit(gen, func(s *State) {
		i := indexOf(s.Todos, id)
		if i < 0 {
			return
		}
		s.Todos = append(s.Todos[:i:i], s.Todos[i+1:]...)
		if s.Count > 0 {
			s.Count--
		}
	})
	return nil
}

// Toggle flips the completed flag of a cached todo and stores the server's
// record. An id that is not cached is ignored: no request, no state change,
// and the zero Todo is returned.
func (c *Controller) Toggle(ctx context.Context, id string) (model.Todo, error) {
	var cur model.Todo
	gw, gen, err := c.beginMutation(func(s *State) bool {
		i := indexOf(s.Todos, id)
		if i < 0 {
			return false
		}
		cur = s.Todos[i]
		return clearError(s)
	})
	// nothing cached means nothing to toggle, with or without a session
	if errors.Is(err, errSkip) || errors.Is(err, ErrNoSession) {
		return model.Todo{}, nil
	}
	if err != nil {
		return model.Todo{}, err
	}

	t, err := gw.ToggleCompleted(ctx, id, !cur.Completed)
	if err != nil {
		c.fail(gen, "toggle", err)
		return model.Todo{}, err
	}
	c.commit(gen, replace(t))
	return t, nil
}

// Update merges patch over the cached record, sends the complete record and
// stores the server's response.
func (c *Controller) Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	cur := model.Todo{ID: id}
	gw, gen, err := c.beginMutation(func(s *State) bool {
		if i := indexOf(s.Todos, id); i >= 0 {
			cur = s.Todos[i]
		}
		return clearError(s)
	})
	if err != nil {
		return model.Todo{}, err
	}

	t, err := gw.Update(ctx, id, patch.Apply(cur))
	if err != nil {
		c.fail(gen, "update", err)
		return model.Todo{}, err
	}
	c.commit(gen, replace(t))
	return t, nil
}

// replace swaps the cached record with the same id for t. A record removed
// in the meantime is not brought back.
func replace(t model.Todo) func(*State) {
	return func(s *State) {
		if i := indexOf(s.Todos, t.ID); i >= 0 {
			s.Todos[i] = t
		}
	}
}
