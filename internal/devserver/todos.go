package devserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Makepad-fr/tada/internal/model"
)

// todoPatch is a partial update; absent fields are left alone. Location is
// kept raw so an explicit null can clear it.
type todoPatch struct {
	Title     *string         `json:"title"`
	Completed *bool           `json:"completed"`
	PhotoURI  *string         `json:"photoUri"`
	Location  json.RawMessage `json:"location"`
}

// location decodes the patch location. set is false when the field was
// absent; a null value is set with a nil location.
func (p todoPatch) location() (loc *model.Location, set bool, err error) {
	if len(p.Location) == 0 {
		return nil, false, nil
	}
	if err := json.Unmarshal(p.Location, &loc); err != nil {
		return nil, true, err
	}
	return loc, true, nil
}

func (s *Server) listTodos(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := append([]model.Todo{}, s.todos[userID(r)]...)
	s.mu.Unlock()

	count := len(items)
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: items, Count: &count})
}

func (s *Server) createTodo(w http.ResponseWriter, r *http.Request) {
	var in model.NewTodo
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	title := model.NormalizeTitle(in.Title)
	if title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	if in.Location != nil && !in.Location.Valid() {
		respondError(w, http.StatusUnprocessableEntity, "location out of range")
		return
	}

	now := s.timestamp()
	t := model.Todo{
		ID:        uuid.NewString(),
		Title:     title,
		PhotoURI:  strings.TrimSpace(in.PhotoURI),
		Location:  in.Location,
		CreatedAt: now,
		UpdatedAt: now,
	}
	uid := userID(r)
	s.mu.Lock()
	s.todos[uid] = append(s.todos[uid], t)
	s.mu.Unlock()

	respondData(w, http.StatusCreated, t)
}

func (s *Server) patchTodo(w http.ResponseWriter, r *http.Request) {
	var p todoPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.Title != nil && model.NormalizeTitle(*p.Title) == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	loc, setLoc, err := p.location()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid location")
		return
	}
	if loc != nil && !loc.Valid() {
		respondError(w, http.StatusUnprocessableEntity, "location out of range")
		return
	}

	id, uid := chi.URLParam(r, "id"), userID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.todos[uid]
	for i := range items {
		if items[i].ID != id {
			continue
		}
		t := &items[i]
		if p.Title != nil {
			t.Title = model.NormalizeTitle(*p.Title)
		}
		if p.Completed != nil {
			t.Completed = *p.Completed
		}
		if p.PhotoURI != nil {
			t.PhotoURI = strings.TrimSpace(*p.PhotoURI)
		}
		if setLoc {
			t.Location = loc
		}
		t.UpdatedAt = s.timestamp()
		respondData(w, http.StatusOK, *t)
		return
	}
	respondError(w, http.StatusNotFound, "todo not found")
}

func (s *Server) deleteTodo(w http.ResponseWriter, r *http.Request) {
	id, uid := chi.URLParam(r, "id"), userID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.todos[uid]
	for i := range items {
		if items[i].ID == id {
			s.todos[uid] = append(items[:i:i], items[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	respondError(w, http.StatusNotFound, "todo not found")
}
