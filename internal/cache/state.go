package cache

import "github.com/Makepad-fr/tada/internal/model"

// Phase is the lifecycle of the cache for one session identity.
type Phase int

const (
	// PhaseIdle is the empty state before the first load of an identity.
	PhaseIdle Phase = iota
	// PhaseLoading means a list request is in flight.
	PhaseLoading
	// PhaseReady means the cache holds the result of the last load.
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// State is a read-only snapshot of the cache.
type State struct {
	Todos []model.Todo
	// Count is the server-reported total, or len(Todos) when the server
	// did not report one.
	Count     int
	IsLoading bool
	// LastError is the message of the most recent failure, empty if the
	// last operation succeeded.
	LastError string
	// Err is the typed error behind LastError, for callers that act on
	// its kind (e.g. a rejected token).
	Err   error
	Phase Phase
}

// Active returns the todos not yet completed, in cache order.
func (s State) Active() []model.Todo {
	return filter(s.Todos, false)
}

// Completed returns the completed todos, in cache order.
func (s State) Completed() []model.Todo {
	return filter(s.Todos, true)
}

func filter(todos []model.Todo, completed bool) []model.Todo {
	out := make([]model.Todo, 0, len(todos))
	for _, t := range todos {
		if t.Completed == completed {
			out = append(out, t)
		}
	}
	return out
}

// Summary counts the cached todos by status.
type Summary struct {
	Total     int
	Completed int
	Pending   int
}

// Summary returns the completed / pending breakdown of the snapshot.
func (s State) Summary() Summary {
	sum := Summary{Total: len(s.Todos)}
	for _, t := range s.Todos {
		if t.Completed {
			sum.Completed++
		} else {
			sum.Pending++
		}
	}
	return sum
}

// Find returns the cached todo with id.
func (s State) Find(id string) (model.Todo, bool) {
	if i := indexOf(s.Todos, id); i >= 0 {
		return s.Todos[i], true
	}
	return model.Todo{}, false
}

func (s State) clone() State {
	out := s
	out.Todos = make([]model.Todo, len(s.Todos))
	copy(out.Todos, s.Todos)
	return out
}

func indexOf(todos []model.Todo, id string) int {
	for i, t := range todos {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// dedupe keeps the first occurrence of each id.
func dedupe(todos []model.Todo) []model.Todo {
	seen := make(map[string]struct{}, len(todos))
	out := make([]model.Todo, 0, len(todos))
	for _, t := range todos {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}
