// Command jsonview inspects and searches large JSON documents from the
// terminal, and runs the line-delimited protocol worker used by
// front-ends.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/jsonview/internal/config"
	"github.com/JonMunkholm/jsonview/internal/logging"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries the state shared by every command.
type app struct {
	configFile string
	noColor    bool
	cfg        *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "jsonview",
		Short: "Page through and search large JSON documents",
		Long: `jsonview flattens JSON documents into rows and serves them page by page
while they are still loading.

Commands:
  inspect   Print rows of a document
  search    Find the first row matching a term
  worker    Serve the line-delimited protocol on stdin/stdout`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "YAML config file (default $"+config.ConfigFileEnv+")")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	config.RegisterFlags(pf)

	root.AddCommand(
		a.inspectCmd(),
		a.searchCmd(),
		a.workerCmd(),
		versionCmd(),
	)
	return root
}

// setup loads .env, the configuration and logging before any command runs.
func (a *app) setup(cmd *cobra.Command) error {
	// A missing .env is fine; existing variables win.
	_ = godotenv.Load()

	cfg, err := config.LoadWith(config.LoadOptions{File: a.configFile, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	a.cfg = cfg
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if a.noColor {
		color.NoColor = true
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "jsonview %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
