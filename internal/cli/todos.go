package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Makepad-fr/tada/internal/app"
	"github.com/Makepad-fr/tada/internal/cache"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/tui"
	"github.com/Makepad-fr/tada/internal/ui"
)

func noArgs(usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 {
			return &usageError{msg: usage}
		}
		return nil
	}
}

func minArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return &usageError{msg: usage}
		}
		return nil
	}
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &usageError{msg: usage}
		}
		return nil
	}
}

// loaded opens a session and loads its todos. A failed load is reported,
// and a rejected token logs the session out.
func (e *env) loaded(ctx context.Context, opts ...app.Option) (*app.App, cache.State, error) {
	a, err := e.openSession(ctx, opts...)
	if err != nil {
		return nil, cache.State{}, err
	}
	a.Todos().Load(ctx)
	s := a.Todos().Snapshot()
	if s.LastError != "" {
		ui.Fail(e.stderr, "load: "+s.LastError)
		if a.HandleError(ctx, s.Err) {
			ui.Hint(e.stderr, "Session expired. Run: todo login")
		}
		a.Close()
		return nil, s, &reportedError{code: 1}
	}
	return a, s, nil
}

// pick resolves a 1-based index argument against s.
func (e *env) pick(cmdName, arg string, s cache.State) (model.Todo, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return model.Todo{}, usagef("%s: not a number: %s", cmdName, arg)
	}
	if n < 1 || n > len(s.Todos) {
		ui.Fail(e.stderr, fmt.Sprintf("index out of range: have %d, got %d", len(s.Todos), n))
		ui.Hint(e.stderr, "Hint: run `todo ls` to see valid indexes")
		return model.Todo{}, &reportedError{code: 2}
	}
	return s.Todos[n-1], nil
}

func newListCmd(e *env) *cobra.Command {
	var plain, group bool
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List todos (interactive when attached to a terminal)",
		Args:  noArgs("usage: todo ls [--plain] [--group]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if plain || !isTerminal(e.stdout) {
				a, s, err := e.loaded(ctx)
				if err != nil {
					return err
				}
				defer a.Close()
				fmt.Fprintln(e.stdout, panelFor(s, group))
				return nil
			}
			return e.interactive(ctx, group)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print the list instead of opening the interactive view")
	cmd.Flags().BoolVar(&group, "group", false, "group output by pending/done")
	return cmd
}

func panelFor(s cache.State, group bool) string {
	sum := s.Summary()
	lines := []string{
		ui.Header(sum.Completed, sum.Pending, s.Count),
		ui.Current().Muted.Render(ui.ProgressBar(sum.Completed, sum.Total, 28)),
		"",
	}
	lines = append(lines, ui.Lines(s.Todos, group)...)
	lines = append(lines, "", ui.Current().Muted.Render("Tip: add with `todo add \"Buy milk\"`"))
	return ui.Panel(lines)
}

func (e *env) interactive(ctx context.Context, group bool) error {
	updates := make(chan struct{}, 1)
	notify := func(cache.State) {
		select {
		case updates <- struct{}{}:
		default:
		}
	}
	a, err := e.openSession(ctx, app.WithOnChange(notify))
	if err != nil {
		return err
	}
	defer a.Close()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := a.Watch(watchCtx); err != nil {
			a.Logger("cli").Printf("session watch disabled: %v", err)
		}
	}()

	expired, err := tui.Run(ctx, a.Todos(), tui.Options{
		Updates:     updates,
		HandleError: func(err error) bool { return a.HandleError(ctx, err) },
		Group:       group,
	})
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	if expired {
		ui.Fail(e.stderr, "session expired. Run: todo login")
		return &reportedError{code: 1}
	}
	return nil
}

func newAddCmd(e *env) *cobra.Command {
	var (
		photo               string
		lat, lon float64
	)
	cmd := &cobra.Command{
		Use:   "add <title...>",
		Short: "Add a todo (title can be multiple words)",
		Args:  minArgs(1, "usage: todo add <title...> [--photo path] [--lat n --lon n]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in := model.NewTodo{Title: strings.Join(args, " ")}
			if model.NormalizeTitle(in.Title) == "" {
				return usagef("add: empty title")
			}
			latSet, lonSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
			if latSet != lonSet {
				return usagef("add: --lat and --lon go together")
			}
			if latSet {
				in.Location = &model.Location{Latitude: lat, Longitude: lon}
			}

			a, _, err := e.loaded(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if photo != "" {
				url, err := a.UploadPhoto(ctx, photo)
				if err != nil {
					return e.fail(ctx, a, "photo", err)
				}
				in.PhotoURI = url
			}
			if _, err := a.Todos().Create(ctx, in); err != nil {
				return e.fail(ctx, a, "add", err)
			}
			ui.OK(e.stdout, "added")
			return nil
		},
	}
	cmd.Flags().StringVar(&photo, "photo", "", "image file to attach")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	return cmd
}

func newDoneCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "done <index>",
		Short: "Toggle done for the todo at a 1-based index",
		Args:  exactArgs(1, "usage: todo done <index>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, s, err := e.loaded(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			t, err := e.pick("done", args[0], s)
			if err != nil {
				return err
			}
			if _, err := a.Todos().Toggle(ctx, t.ID); err != nil {
				return e.fail(ctx, a, "done", err)
			}
			ui.OK(e.stdout, "toggled")
			return nil
		},
	}
}

func newRemoveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <index>",
		Short: "Remove the todo at a 1-based index",
		Args:  exactArgs(1, "usage: todo rm <index>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, s, err := e.loaded(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			t, err := e.pick("rm", args[0], s)
			if err != nil {
				return err
			}
			if err := a.Todos().Delete(ctx, t.ID); err != nil {
				return e.fail(ctx, a, "rm", err)
			}
			ui.OK(e.stdout, "removed")
			return nil
		},
	}
}

func newEditCmd(e *env) *cobra.Command {
	var (
		photo               string
		noPhoto, noLocation bool
	)
	cmd := &cobra.Command{
		Use:   "edit <index> <title...>",
		Short: "Change the title of the todo at a 1-based index",
		Args:  minArgs(2, "usage: todo edit <index> <title...> [--photo path | --no-photo] [--no-location]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			title := strings.Join(args[1:], " ")
			if model.NormalizeTitle(title) == "" {
				return usagef("edit: empty title")
			}
			if photo != "" && noPhoto {
				return usagef("edit: --photo and --no-photo are exclusive")
			}
			a, s, err := e.loaded(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			t, err := e.pick("edit", args[0], s)
			if err != nil {
				return err
			}

			patch := model.TodoPatch{Title: &title, ClearLocation: noLocation}
			if noPhoto {
				empty := ""
				patch.PhotoURI = &empty
			}
			if photo != "" {
				url, err := a.UploadPhoto(ctx, photo)
				if err != nil {
					return e.fail(ctx, a, "photo", err)
				}
				patch.PhotoURI = &url
			}
			if _, err := a.Todos().Update(ctx, t.ID, patch); err != nil {
				return e.fail(ctx, a, "edit", err)
			}
			ui.OK(e.stdout, "saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&photo, "photo", "", "replace the attached image")
	cmd.Flags().BoolVar(&noPhoto, "no-photo", false, "remove the attached image")
	cmd.Flags().BoolVar(&noLocation, "no-location", false, "remove the attached location")
	return cmd
}

func newSummaryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print completed and pending counts",
		Args:  noArgs("usage: todo summary"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, s, err := e.loaded(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			sum := s.Summary()
			fmt.Fprintln(e.stdout, ui.Header(sum.Completed, sum.Pending, s.Count))
			fmt.Fprintln(e.stdout, ui.ProgressBar(sum.Completed, sum.Total, 28))
			return nil
		},
	}
}
