// Package tui is the interactive todo list. Every edit goes through the cache
// controller as a command; the view is redrawn from controller snapshots.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Makepad-fr/tada/internal/apierr"
	"github.com/Makepad-fr/tada/internal/cache"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/ui"
)

// Todos is the part of the cache controller the list drives.
type Todos interface {
	Snapshot() cache.State
	Load(ctx context.Context)
	Create(ctx context.Context, in model.NewTodo) (model.Todo, error)
	Toggle(ctx context.Context, id string) (model.Todo, error)
	Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error)
	Delete(ctx context.Context, id string) error
}

// Options wires the list to the application.
type Options struct {
	// Updates signals state changes made outside the list, such as a
	// session switch picked up by the watcher.
	Updates <-chan struct{}
	// HandleError reports whether err ended the session.
	HandleError func(error) bool
	// Group sorts pending todos before completed ones.
	Group bool
}

// todoItem adapts model.Todo to bubbles/list.Item
type todoItem struct{ todo model.Todo }

func (i todoItem) Title() string       { return i.todo.Title }
func (i todoItem) Description() string { return "" }
func (i todoItem) FilterValue() string { return i.todo.Title }

// Custom delegate to control how items render (single line)
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, _ := item.(todoItem)
	th := ui.Current()

	box := th.Muted.Render(th.BoxUnchecked)
	text := ui.Truncate(it.todo.Title, 80)
	if it.todo.Completed {
		box = th.Success.Render(th.BoxChecked)
		text = th.Done.Render(text)
	}
	line := box + " " + text
	if extra := ui.Details(it.todo); extra != "" {
		line += " " + th.Muted.Render(extra)
	}
	prefix := "  "
	if index == m.Index() {
		prefix = th.Selected.Render("> ")
	}
	fmt.Fprintln(w, prefix+line)
}

type mode int

const (
	modeList mode = iota
	modeAdd
	modeEdit
)

// stateMsg asks the model to redraw from a fresh snapshot.
type stateMsg struct{}

// opMsg is the outcome of one controller operation.
type opMsg struct {
	op  string
	err error
	// deleted is the removed todo, kept for undo once the delete succeeds.
	deleted *model.Todo
}

// Model is the Bubble Tea model of the list.
type Model struct {
	ctx   context.Context
	todos Todos
	opts  Options

	list  list.Model
	state cache.State

	mode   mode
	ti     textinput.Model
	editID string
	status string
	// Undo support (single-level): the last deleted todo, re-created on u.
	undo *model.Todo

	width, height int
	expired       bool
}

var (
	addBind    = key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	editBind   = key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit"))
	toggleBind = key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle"))
	deleteBind = key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete"))
	undoBind   = key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undo"))
	reloadBind = key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload"))
)

// New builds the list model over todos.
func New(ctx context.Context, todos Todos, opts Options) Model {
	th := ui.Current()
	l := list.New(nil, itemDelegate{}, 0, 0)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = th.Title
	l.Styles.HelpStyle = th.Muted
	l.Styles.PaginationStyle = th.Muted
	l.FilterInput.Prompt = "/ "
	l.SetStatusBarItemName("todo", "todos")
	bindings := func() []key.Binding {
		return []key.Binding{addBind, editBind, toggleBind, deleteBind, undoBind, reloadBind}
	}
	l.AdditionalShortHelpKeys = bindings
	l.AdditionalFullHelpKeys = bindings

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 200

	m := Model{ctx: ctx, todos: todos, opts: opts, list: l, ti: ti, width: 80, height: 24}
	m.apply(todos.Snapshot())
	return m
}

// Expired reports whether the list quit because the session ended.
func (m Model) Expired() bool { return m.expired }

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), m.waitCmd())
}

func (m Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		m.todos.Load(m.ctx)
		if err := m.todos.Snapshot().Err; err != nil {
			return opMsg{op: "load", err: err}
		}
		return stateMsg{}
	}
}

func (m Model) waitCmd() tea.Cmd {
	if m.opts.Updates == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-m.opts.Updates:
			return stateMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

// run wraps a controller call as a command.
func (m Model) run(op string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opMsg{op: op, err: fn(m.ctx)}
	}
}

// apply replaces the list contents with s, keeping the cursor in range.
func (m *Model) apply(s cache.State) {
	m.state = s
	todos := s.Todos
	if m.opts.Group {
		todos = append(s.Active(), s.Completed()...)
	}
	items := make([]list.Item, len(todos))
	for i, t := range todos {
		items[i] = todoItem{todo: t}
	}
	idx := m.list.Index()
	m.list.SetItems(items)
	if idx >= len(items) && len(items) > 0 {
		m.list.Select(len(items) - 1)
	}
	sum := s.Summary()
	m.list.Title = ui.Header(sum.Completed, sum.Pending, s.Count)
}

func (m Model) selected() (model.Todo, bool) {
	it, ok := m.list.SelectedItem().(todoItem)
	return it.todo, ok
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case stateMsg:
		m.apply(m.todos.Snapshot())
		return m, m.waitCmd()
	case opMsg:
		m.apply(m.todos.Snapshot())
		if msg.err == nil {
			m.status = msg.op
			if msg.deleted != nil {
				m.undo = msg.deleted
			}
			return m, nil
		}
		m.status = ""
		if m.opts.HandleError != nil && m.opts.HandleError(msg.err) {
			m.expired = true
			return m, tea.Quit
		}
		return m, nil
	}

	if m.mode != modeList {
		return m.updateInput(msg)
	}

	if k, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		switch k.String() {
		case "q", "esc":
			return m, tea.Quit
		case " ":
			if t, ok := m.selected(); ok {
				return m, m.run("toggled", func(ctx context.Context) error {
					_, err := m.todos.Toggle(ctx, t.ID)
					return err
				})
			}
			return m, nil
		case "d":
			if t, ok := m.selected(); ok {
				return m, func() tea.Msg {
					if err := m.todos.Delete(m.ctx, t.ID); err != nil {
						return opMsg{op: "deleted", err: err}
					}
					return opMsg{op: "deleted", deleted: &t}
				}
			}
			return m, nil
		case "u":
			if t := m.undo; t != nil {
				m.undo = nil
				in := model.NewTodo{Title: t.Title, PhotoURI: t.PhotoURI, Location: t.Location}
				return m, m.run("restored", func(ctx context.Context) error {
					_, err := m.todos.Create(ctx, in)
					return err
				})
			}
			return m, nil
		case "r":
			return m, m.loadCmd()
		case "a":
			m.mode = modeAdd
			m.ti.SetValue("")
			m.ti.Placeholder = "New todo title..."
			m.ti.Focus()
			return m, textinput.Blink
		case "e":
			if t, ok := m.selected(); ok {
				m.mode = modeEdit
				m.editID = t.ID
				m.ti.SetValue(t.Title)
				m.ti.CursorEnd()
				m.ti.Placeholder = "Edit todo title..."
				m.ti.Focus()
				return m, textinput.Blink
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "enter":
			title := model.NormalizeTitle(m.ti.Value())
			if title == "" {
				m.status = ""
				m.state.LastError = apierr.Message(apierr.Validation("title is required"))
				return m, nil
			}
			var cmd tea.Cmd
			if m.mode == modeAdd {
				cmd = m.run("added", func(ctx context.Context) error {
					_, err := m.todos.Create(ctx, model.NewTodo{Title: title})
					return err
				})
			} else {
				id := m.editID
				cmd = m.run("saved", func(ctx context.Context) error {
					_, err := m.todos.Update(ctx, id, model.TodoPatch{Title: &title})
					return err
				})
			}
			m.closeInput()
			return m, cmd
		case "esc":
			m.closeInput()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

func (m *Model) closeInput() {
	m.mode = modeList
	m.editID = ""
	m.ti.SetValue("")
	m.ti.Blur()
}

func (m Model) View() string {
	th := ui.Current()
	listHeight := m.height - 6
	if m.mode != modeList {
		listHeight -= 3
	}
	if listHeight < 3 {
		listHeight = 3
	}
	m.list.SetSize(m.width-4, listHeight)

	sum := m.state.Summary()
	var b strings.Builder
	b.WriteString(th.Muted.Render(ui.ProgressBar(sum.Completed, sum.Total, 28)))
	b.WriteString("\n")
	b.WriteString(m.list.View())

	if m.mode != modeList {
		title := "Add todo"
		if m.mode == modeEdit {
			title = "Edit todo"
		}
		bar := lipgloss.NewStyle().Border(th.Border).BorderForeground(th.BorderColor).Padding(0, 1)
		b.WriteString("\n")
		b.WriteString(bar.Render(title + "\n" + m.ti.View()))
	}

	b.WriteString("\n")
	switch {
	case m.state.IsLoading:
		b.WriteString(th.Muted.Render("loading..."))
	case m.state.LastError != "":
		b.WriteString(th.Error.Render("✖ " + m.state.LastError))
	case m.status != "":
		b.WriteString(th.Success.Render(th.SymDone + " " + m.status))
	}
	return ui.Panel([]string{b.String()})
}

// Run starts the list full screen and blocks until the user quits. It
// reports whether the session ended while the list was open.
func Run(ctx context.Context, todos Todos, opts Options) (bool, error) {
	p := tea.NewProgram(New(ctx, todos, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	fm, ok := final.(Model)
	return ok && fm.Expired(), nil
}
