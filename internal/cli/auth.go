package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Makepad-fr/tada/internal/apierr"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/token"
	"github.com/Makepad-fr/tada/internal/ui"
)

// credentialFlags are shared by login and register.
type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "account email (prompted when empty)")
	cmd.Flags().StringVar(&f.password, "password", "", "account password (prompted when empty)")
}

// prompt fills in missing credentials from stdin. The password is read
// without echo when stdin is a terminal.
func (e *env) prompt(f *credentialFlags) error {
	rd := bufio.NewReader(e.stdin)
	if f.email == "" {
		fmt.Fprint(e.stdout, "Email: ")
		line, err := rd.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read email: %w", err)
		}
		f.email = strings.TrimSpace(line)
	}
	if f.password == "" {
		fmt.Fprint(e.stdout, "Password: ")
		if in, ok := e.stdin.(*os.File); ok && term.IsTerminal(int(in.Fd())) {
			b, err := term.ReadPassword(int(in.Fd()))
			fmt.Fprintln(e.stdout)
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			f.password = string(b)
		} else {
			line, err := rd.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read password: %w", err)
			}
			f.password = strings.TrimRight(line, "\r\n")
		}
	}
	return nil
}

func newLoginCmd(e *env) *cobra.Command {
	var f credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		Args:  noArgs("usage: todo login [--email e] [--password p]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.authenticate(cmd.Context(), &f, false)
		},
	}
	f.register(cmd)
	return cmd
}

func newRegisterCmd(e *env) *cobra.Command {
	var f credentialFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  noArgs("usage: todo register [--email e] [--password p]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.authenticate(cmd.Context(), &f, true)
		},
	}
	f.register(cmd)
	return cmd
}

func (e *env) authenticate(ctx context.Context, f *credentialFlags, create bool) error {
	if err := e.prompt(f); err != nil {
		return err
	}
	a, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var sess *model.Session
	if create {
		sess, err = a.Register(ctx, f.email, f.password)
	} else {
		sess, err = a.Login(ctx, f.email, f.password)
	}
	if err != nil {
		ui.Fail(e.stderr, apierr.Message(err))
		if apierr.IsValidation(err) {
			return &reportedError{code: 2}
		}
		return &reportedError{code: 1}
	}
	if create {
		ui.OK(e.stdout, "registered as " + sess.Email)
	} else {
		ui.OK(e.stdout, "logged in as " + sess.Email)
	}
	return nil
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the current session",
		Args:  noArgs("usage: todo logout"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Source() == "env" {
				ui.OK(e.stdout, "token is provided by TADA_TOKEN env var (nothing to delete)")
				return nil
			}
			a.Logout(ctx)
			ui.OK(e.stdout, "logged out")
			return nil
		},
	}
}

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  noArgs("usage: todo status"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sess := a.Session()
			if sess == nil {
				ui.Hint(e.stdout, "not logged in")
				fmt.Fprintln(e.stdout, "Run: todo login")
				return nil
			}
			fmt.Fprintf(e.stdout, "user:    %s\n", sess.Email)
			fmt.Fprintf(e.stdout, "id:      %s\n", sess.ID)
			fmt.Fprintf(e.stdout, "source:  %s\n", a.Source())
			fmt.Fprintf(e.stdout, "server:  %s\n", e.cfg.APIURL)
			if sess.ExpiresAt != nil {
				fmt.Fprintf(e.stdout, "expires: %s\n", sess.ExpiresAt.UTC().Format(time.RFC3339))
			} else {
				fmt.Fprintln(e.stdout, "expires: (unknown)")
			}
			fmt.Fprintln(e.stdout, "env override: TADA_TOKEN")
			return nil
		},
	}
}

// whoami decodes the token locally (unverified); opaque tokens print basic info.
func newWhoAmICmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the claims of the current token",
		Args:  noArgs("usage: todo whoami"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := token.Decode(a.Session().Token)
			if err != nil {
				fmt.Fprintln(e.stdout, "Opaque token (cannot introspect locally).")
				fmt.Fprintln(e.stdout, "source:", a.Source())
				return nil
			}
			b, err := json.MarshalIndent(c.Raw, "", "  ")
			if err != nil {
				return fmt.Errorf("encode claims: %w", err)
			}
			fmt.Fprintln(e.stdout, "JWT payload:")
			fmt.Fprintln(e.stdout, string(b))
			return nil
		},
	}
}
