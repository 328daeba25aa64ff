package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
	"github.com/JonMunkholm/jsonview/internal/viewer"
)

type inspectOptions struct {
	offset int
	limit  int
	format string
	stats  bool
}

func (a *app) inspectCmd() *cobra.Command {
	opts := inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print rows of a JSON document",
		Long: `Print a window of flattened rows. Rows are printed as soon as they are
loaded; with --stats the command then waits for the whole document and
reports its size.

Examples:
  jsonview inspect data.json
  jsonview inspect --offset 5000 --limit 20 data.json.gz
  jsonview inspect --format yaml data.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.runInspect(ctx, cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.offset, "offset", 0, "index of the first row to print")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 50, "number of rows to print")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatTable, "output format: table, json or yaml")
	cmd.Flags().BoolVar(&opts.stats, "stats", true, "wait for the whole document and print its row count")
	return cmd
}

func (a *app) runInspect(ctx context.Context, w io.Writer, path string, opts inspectOptions) error {
	if opts.offset < 0 || opts.limit <= 0 {
		return errors.New("offset must be >= 0 and limit > 0")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return userError(err)
	}

	lw := startLocal(ctx, a.cfg, viewer.Options{})
	defer lw.Close()
	c := lw.client

	if err := c.Open(abs, a.cfg.Ingest.Turbo); err != nil {
		return err
	}
	if err := c.LoadUntil(ctx, opts.offset+opts.limit); err != nil {
		return err
	}

	var rows []rowstore.Row
	var werr *core.UserMessage
	c.View(func(m *viewer.Model) {
		werr = m.Err()
		all := m.Rows()
		if opts.offset < len(all) {
			rows = append(rows, all[opts.offset:min(opts.offset+opts.limit, len(all))]...)
		}
	})
	if werr != nil {
		return userMessageError(*werr)
	}

	if err := renderRows(w, opts.format, rows, opts.offset, -1); err != nil {
		return err
	}
	if !opts.stats || opts.format != formatTable {
		return nil
	}

	if err := c.WaitFor(ctx, func(m *viewer.Model) bool { return m.Finished() || m.Err() != nil }); err != nil {
		return err
	}
	var total int
	c.View(func(m *viewer.Model) {
		total = m.TotalRows()
		werr = m.Err()
	})
	if werr != nil {
		return userMessageError(*werr)
	}
	fmt.Fprintf(w, "%s: %s rows, %s\n", filepath.Base(abs), humanize.Comma(int64(total)), humanize.IBytes(uint64(fi.Size())))
	return nil
}

// userError maps err to the message the API would show.
func userError(err error) error {
	return userMessageError(core.MapError(err))
}

func userMessageError(msg core.UserMessage) error {
	return fmt.Errorf("%s (%s). %s", msg.Message, msg.Code, msg.Action)
}
