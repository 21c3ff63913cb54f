// Package cli is the todo command tree. Commands return an exit code
// through Execute: 0 ok, 1 error, 2 usage.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Makepad-fr/tada/internal/apierr"
	"github.com/Makepad-fr/tada/internal/app"
	"github.com/Makepad-fr/tada/internal/cache"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/ui"
)

// usageError marks errors caused by how the command was invoked.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// reportedError has already been printed; only its exit code matters.
type reportedError struct{ code int }

func (e *reportedError) Error() string { return fmt.Sprintf("exit %d", e.code) }

// env is shared by every command of one invocation.
type env struct {
	v          *viper.Viper
	configPath string

	stdin          io.Reader
	stdout, stderr io.Writer

	cfg  *config.Config
	logs *logging.Logger
}

// Execute runs the command line args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	e := &env{v: config.New(), stdin: stdin, stdout: stdout, stderr: stderr}
	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if e.logs != nil {
		_ = e.logs.Close()
	}
	return exitCode(err, stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var (
		reported *reportedError
		usage    *usageError
	)
	switch {
	case errors.As(err, &reported):
		return reported.code
	case errors.As(err, &usage):
		ui.Fail(stderr, usage.msg)
		return 2
	case strings.HasPrefix(err.Error(), "unknown command"),
		strings.HasPrefix(err.Error(), "unknown flag"):
		ui.Fail(stderr, err.Error())
		return 2
	default:
		ui.Fail(stderr, err.Error())
		return 1
	}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "todo",
		Short: "todo - a tiny CLI for your remote todo list",
		Long: `todo keeps a local view of your todo list in sync with the server.

Examples:
  todo register
  todo add "Buy milk"
  todo ls
  todo done 2
  todo rm 3`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&e.configPath, "config", "", "config file (default: <data dir>/config.yaml)")
	pf.String("api-url", "", "API base URL")
	pf.String("data-dir", "", "directory for the session and logs (default ~/.tada)")
	pf.String("theme", "", "output theme: classic, neon or mono")
	pf.BoolP("verbose", "v", false, "mirror diagnostics to stderr")
	_ = e.v.BindPFlag("api_url", pf.Lookup("api-url"))
	_ = e.v.BindPFlag("data_dir", pf.Lookup("data-dir"))
	_ = e.v.BindPFlag("theme", pf.Lookup("theme"))
	_ = e.v.BindPFlag("log.verbose", pf.Lookup("verbose"))

	root.AddCommand(
		newLoginCmd(e),
		newRegisterCmd(e),
		newLogoutCmd(e),
		newStatusCmd(e),
		newWhoAmICmd(e),
		newListCmd(e),
		newAddCmd(e),
		newDoneCmd(e),
		newRemoveCmd(e),
		newEditCmd(e),
		newSummaryCmd(e),
		newDevServerCmd(e),
	)
	return root
}

// load resolves the configuration and opens the log file.
func (e *env) load() error {
	cfg, err := config.Load(e.v, e.configPath)
	if err != nil {
		return err
	}
	logs, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	e.cfg, e.logs = cfg, logs
	ui.SetTheme(cfg.Theme)
	return nil
}

// open builds and starts the application context. The caller must Close it.
func (e *env) open(ctx context.Context, opts ...app.Option) (*app.App, error) {
	a, err := app.New(e.cfg, e.logs, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openSession is open for commands that need to be logged in.
func (e *env) openSession(ctx context.Context, opts ...app.Option) (*app.App, error) {
	a, err := e.open(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if a.Session() == nil {
		a.Close()
		ui.Fail(e.stderr, "not logged in. Run: todo login")
		return nil, &reportedError{code: 2}
	}
	return a, nil
}

// fail reports err from a remote operation, dropping the session when the
// server rejected the token.
func (e *env) fail(ctx context.Context, a *app.App, op string, err error) error {
	if errors.Is(err, cache.ErrNoSession) {
		ui.Fail(e.stderr, "not logged in. Run: todo login")
		return &reportedError{code: 2}
	}
	ui.Fail(e.stderr, op+": "+apierr.Message(err))
	if apierr.IsValidation(err) {
		return &reportedError{code: 2}
	}
	if a.HandleError(ctx, err) {
		ui.Hint(e.stderr, "Session expired. Run: todo login")
	}
	return &reportedError{code: 1}
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
