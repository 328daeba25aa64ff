package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/protocol"
)

func (a *app) workerCmd() *cobra.Command {
	opts := protocol.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Serve the line-delimited protocol on stdin/stdout",
		Long: `Read one JSON request per line from stdin and write JSON responses to
stdout. Logs go to stderr. The worker exits when stdin is closed and the
current document has finished loading.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Ingest.PreviewBytes > 0 {
				opts.PreviewBytes = a.cfg.Ingest.PreviewBytes
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.Default()
			svc := core.NewService(a.cfg.ServiceOptions(), nil, logger)
			defer svc.CloseAll()

			err := protocol.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), svc, opts, logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVar(&opts.MaxLineBytes, "max-line-bytes", opts.MaxLineBytes, "largest accepted request line, inline input included")
	return cmd
}
