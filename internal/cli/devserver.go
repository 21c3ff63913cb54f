package cli

import (
	"crypto/rand"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Makepad-fr/tada/internal/devserver"
)

func newDevServerCmd(e *env) *cobra.Command {
	var addr, secret string
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory backend for local development",
		Long: `Run an in-memory implementation of the todo API. Nothing is persisted.

Example usage:
  todo devserver                  # listen on :8080
  todo devserver --addr :9000
  TADA_API_URL=http://localhost:9000 todo register`,
		Args: noArgs("usage: todo devserver [--addr host:port]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := []byte(secret)
			if len(key) == 0 {
				key = make([]byte, 32)
				if _, err := rand.Read(key); err != nil {
					return fmt.Errorf("generate secret: %w", err)
				}
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			srv := devserver.New(key, devserver.WithLogger(e.logs.For("devserver")))
			fmt.Fprintf(e.stdout, "Dev server listening on %s\n", addr)
			fmt.Fprintln(e.stdout, "Press Ctrl+C to stop...")
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return fmt.Errorf("devserver: %w", err)
			}
			fmt.Fprintln(e.stdout, "Dev server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&secret, "secret", "", "token signing secret (random when empty)")
	return cmd
}
