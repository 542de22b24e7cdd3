// Package cli provides the command-line interface for dbpipeline.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dbpipeline/internal/cli/commands"
	"github.com/JonMunkholm/dbpipeline/internal/config"
	"github.com/JonMunkholm/dbpipeline/internal/core"
	"github.com/JonMunkholm/dbpipeline/internal/logging"
	"github.com/JonMunkholm/dbpipeline/internal/store"
)

// Version information (set at build time).
var Version = "0.1.0"

// root owns the store opened for one invocation.
type root struct {
	envFile  string
	storeURL string
	logLevel string

	store store.Store
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *root) {
	r := &root{}

	rootCmd := &cobra.Command{
		Use:   "dbpipeline",
		Short: "Clean the NY flights dataset into a typed table store",
		Long: `dbpipeline cleans a raw CSV dataset using a column-metadata sheet,
checks null tolerances and key uniqueness, derives flight features and saves
the result to SQLite or PostgreSQL. Saved tables can be read back with
their types intact.

Configuration comes from the environment (and a .env file); flags override it.`,
		Version:           Version,
		PersistentPreRunE: r.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.PersistentFlags().StringVar(&r.envFile, "env-file", ".env", "Environment file to load if present")
	rootCmd.PersistentFlags().StringVar(&r.storeURL, "store", "", "SQLite path or postgres:// URL (default STORE_URL)")
	rootCmd.PersistentFlags().StringVar(&r.logLevel, "log-level", "", "Log level: debug, info, warn, error (default LOG_LEVEL)")

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewFetchCommand())
	rootCmd.AddCommand(commands.NewTablesCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(commands.NewServeCommand())

	return rootCmd, r
}

// setup loads the configuration, opens the store and hands both to the
// subcommand through its context.
func (r *root) setup(cmd *cobra.Command, _ []string) error {
	switch cmd.Name() {
	case "help", "completion", "__complete", "version":
		return nil
	}

	if r.envFile != "" {
		if err := godotenv.Load(r.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", r.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if r.storeURL != "" {
		cfg.Store.URL = r.storeURL
	}
	if r.logLevel != "" {
		cfg.Logging.Level = r.logLevel
	}

	// stdout carries command output only
	logging.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	st, err := store.Open(cmd.Context(), cfg.Store)
	if err != nil {
		return err
	}
	r.store = st

	app := &commands.App{Config: cfg, Service: core.NewService(st, cfg)}
	cmd.SetContext(commands.WithApp(cmd.Context(), app))
	return nil
}

func (r *root) close() {
	if r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		slog.Warn("closing store", "error", err)
	}
	r.store = nil
}

// Execute runs the root command with ctx and prints any error with its
// user-facing explanation.
func Execute(ctx context.Context) error {
	cmd, r := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	r.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := core.FormatUserError(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		return err
	}
	return nil
}
