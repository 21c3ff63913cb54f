package model

import "strings"

// Location is a geographic point attached to a todo.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// Todo is the domain model for a todo entry. The server owns the id and is
// the source of truth for every field.
type Todo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	PhotoURI  string    `json:"photoUri,omitempty"`
	Location  *Location `json:"location,omitempty"`
	CreatedAt string    `json:"createdAt,omitempty"`
	UpdatedAt string    `json:"updatedAt,omitempty"`
}

// NewTodo carries the fields a caller supplies when creating a todo.
type NewTodo struct {
	Title    string    `json:"title"`
	PhotoURI string    `json:"photoUri,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// TodoUpdate is the full editable record sent on update. Every field is
// sent: an empty PhotoURI or a null Location clears it on the server.
type TodoUpdate struct {
	Title    string    `json:"title"`
	PhotoURI string    `json:"photoUri"`
	Location *Location `json:"location"`
}

// TodoPatch holds the fields a caller wants to change. Nil fields keep the
// current value; a pointer to "" clears the photo and ClearLocation drops
// the location.
type TodoPatch struct {
	Title         *string
	PhotoURI      *string
	Location      *Location
	ClearLocation bool
}

// Apply merges the patch over t and returns the complete record to send.
func (p TodoPatch) Apply(t Todo) TodoUpdate {
	out := TodoUpdate{Title: t.Title, PhotoURI: t.PhotoURI, Location: t.Location}
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.PhotoURI != nil {
		out.PhotoURI = *p.PhotoURI
	}
	switch {
	case p.ClearLocation:
		out.Location = nil
	case p.Location != nil:
		loc := *p.Location
		out.Location = &loc
	}
	return out
}

// NormalizeTitle trims surrounding whitespace.
func NormalizeTitle(s string) string { return strings.TrimSpace(s) }
