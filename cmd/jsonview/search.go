package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
	"github.com/JonMunkholm/jsonview/internal/viewer"
)

// errNoMatch makes the command exit non-zero like grep.
var errNoMatch = errors.New("no match")

type searchOptions struct {
	context int
	format  string
}

func (a *app) searchCmd() *cobra.Command {
	opts := searchOptions{}

	cmd := &cobra.Command{
		Use:   "search FILE TERM",
		Short: "Find the first row matching a term",
		Long: `Find the first row whose key, or key followed by value, contains TERM.
The search runs once the document has finished loading; the match is
printed with --context rows on each side.

Examples:
  jsonview search data.json "item-99"
  jsonview search -C 10 --format json data.json.zst error`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.runSearch(ctx, cmd.OutOrStdout(), args[0], args[1], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.context, "context", "C", 3, "rows to print on each side of the match")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatTable, "output format: table, json or yaml")
	return cmd
}

func (a *app) runSearch(ctx context.Context, w io.Writer, path, term string, opts searchOptions) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return userError(err)
	}

	// Searches are held until loading finishes, as an interactive viewer
	// does, so the result covers the whole document.
	lw := startLocal(ctx, a.cfg, viewer.Options{HoldSearches: true})
	defer lw.Close()
	c := lw.client

	if err := c.Open(abs, a.cfg.Ingest.Turbo); err != nil {
		return err
	}
	if err := c.Search(ctx, term); err != nil {
		return err
	}

	var (
		rows  []rowstore.Row
		first int
		match = -1
		werr  *core.UserMessage
	)
	c.View(func(m *viewer.Model) {
		werr = m.Err()
		sel := m.Selected()
		if sel < 0 {
			return
		}
		all := m.Rows()
		lo := max(sel-opts.context, 0)
		hi := min(sel+opts.context+1, len(all))
		rows = append(rows, all[lo:hi]...)
		first = m.ScopeStart() + lo
		match = m.ScopeStart() + sel
	})
	if werr != nil {
		return userMessageError(*werr)
	}
	if match < 0 {
		fmt.Fprintf(os.Stderr, "%q not found in %s\n", term, filepath.Base(abs))
		return errNoMatch
	}
	return renderRows(w, opts.format, rows, first, match)
}
