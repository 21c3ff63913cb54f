package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Makepad-fr/tada/internal/apierr"
	"github.com/Makepad-fr/tada/internal/model"
)

// TodoGateway is the remote todo collection of one bearer token.
type TodoGateway struct {
	c *client
}

// bearerClient returns an HTTP client that signs every request with bearer.
func bearerClient(opts Options, bearer string, timeout time.Duration) *http.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, opts.baseClient())
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: bearer,
		TokenType:   "Bearer",
	}))
	hc.Timeout = timeout
	return hc
}

// NewTodoGateway returns a gateway scoped to bearer.
func NewTodoGateway(opts Options, bearer string) *TodoGateway {
	return &TodoGateway{c: newClient(opts, bearerClient(opts, bearer, opts.timeout()))}
}

func todoPath(id string) string { return "/todos/" + url.PathEscape(id) }

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apierr.Validation("todo id is required")
	}
	return nil
}

func validateTitle(title string) (string, error) {
	title = model.NormalizeTitle(title)
	if title == "" {
		return "", apierr.Validation("title is required")
	}
	return title, nil
}

func validateLocation(loc *model.Location) error {
	if loc != nil && !loc.Valid() {
		return apierr.Validation("location is out of range")
	}
	return nil
}

// List returns the todos in server order and the server's total. A 404 or a
// body without an array means no todos yet.
func (g *TodoGateway) List(ctx context.Context) ([]model.Todo, int, error) {
	resp, err := g.c.send(ctx, http.MethodGet, "/todos", nil)
	if err != nil {
		return nil, 0, err
	}
	switch {
	case resp.status == http.StatusUnauthorized:
		return nil, 0, apierr.ErrUnauthorized
	case resp.status == http.StatusNotFound:
		return []model.Todo{}, 0, nil
	case !resp.ok():
		return nil, 0, resp.serverError()
	}

	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		g.c.logger.Printf("WARNING: unreadable todo list (request %s), treating as empty", resp.reqID)
		return []model.Todo{}, 0, nil
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || data[0] != '[' {
		return []model.Todo{}, 0, nil
	}

	var raw []model.Todo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, resp.invalid()
	}
	items := make([]model.Todo, 0, len(raw))
	for _, t := range raw {
		if t.ID == "" {
			g.c.logger.Printf("WARNING: skipping todo without id (request %s)", resp.reqID)
			continue
		}
		items = append(items, t)
	}

	count := len(items)
	if env.Count != nil && *env.Count >= 0 {
		count = *env.Count
	}
	return items, count, nil
}

// Create adds a todo. The title is validated before any request.
func (g *TodoGateway) Create(ctx context.Context, in model.NewTodo) (model.Todo, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return model.Todo{}, err
	}
	if err := validateLocation(in.Location); err != nil {
		return model.Todo{}, err
	}
	in.Title = title
	in.PhotoURI = strings.TrimSpace(in.PhotoURI)
	return g.mutate(ctx, http.MethodPost, "/todos", in)
}

// ToggleCompleted sets only the completed flag.
func (g *TodoGateway) ToggleCompleted(ctx context.Context, id string, completed bool) (model.Todo, error) {
	if err := requireID(id); err != nil {
		return model.Todo{}, err
	}
	return g.mutate(ctx, http.MethodPatch, todoPath(id), map[string]bool{"completed": completed})
}

// Update replaces the editable fields. The title is validated like Create.
func (g *TodoGateway) Update(ctx context.Context, id string, in model.TodoUpdate) (model.Todo, error) {
	if err := requireID(id); err != nil {
		return model.Todo{}, err
	}
	title, err := validateTitle(in.Title)
	if err != nil {
		return model.Todo{}, err
	}
	if err := validateLocation(in.Location); err != nil {
		return model.Todo{}, err
	}
	in.Title = title
	in.PhotoURI = strings.TrimSpace(in.PhotoURI)
	return g.mutate(ctx, http.MethodPatch, todoPath(id), in)
}

// Delete removes a todo.
func (g *TodoGateway) Delete(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	resp, err := g.c.send(ctx, http.MethodDelete, todoPath(id), nil)
	if err != nil {
		return err
	}
	if resp.status == http.StatusUnauthorized {
		return apierr.ErrUnauthorized
	}
	if !resp.ok() {
		return resp.serverError()
	}
	return nil
}

// mutate sends body and decodes the canonical record from the response.
func (g *TodoGateway) mutate(ctx context.Context, method, path string, body any) (model.Todo, error) {
	resp, err := g.c.send(ctx, method, path, body)
	if err != nil {
		return model.Todo{}, err
	}
	if resp.status == http.StatusUnauthorized {
		return model.Todo{}, apierr.ErrUnauthorized
	}
	if !resp.ok() {
		return model.Todo{}, resp.serverError()
	}

	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return model.Todo{}, resp.invalid()
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return model.Todo{}, resp.invalid()
	}
	var t model.Todo
	if err := json.Unmarshal(data, &t); err != nil || t.ID == "" {
		return model.Todo{}, resp.invalid()
	}
	return t, nil
}
