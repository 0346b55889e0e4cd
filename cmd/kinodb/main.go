// Command kinodb manages a small movie database from an interactive menu.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/ammar0144/kinodb/pkg/config"
	"github.com/ammar0144/kinodb/pkg/db"
	"github.com/ammar0144/kinodb/pkg/menu"
	"github.com/ammar0144/kinodb/pkg/prompt"
	"github.com/ammar0144/kinodb/pkg/redis"
	"github.com/ammar0144/kinodb/pkg/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// flags holds command line overrides; empty values leave the config alone
type flags struct {
	config   string
	database string
	pageSize int
	logLevel string
}

func newRootCommand(stdin io.ReadCloser, stdout, stderr io.Writer) *cobra.Command {
	f := &flags{}

	rc := &cobra.Command{
		Use:   "kinodb",
		Short: "Manage movies, actors and genres in a local database",
		Long: `kinodb keeps movies, actors and the casts linking them in a SQLite file.

Settings come from .kinodb.yaml, a .env file and KINODB_* environment
variables, e.g. KINODB_DATABASE_PATH or KINODB_CACHE_ENABLED.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, f, stderr)
			if err != nil {
				return err
			}
			return interactive(cmd.Context(), cfg, log, stdin, stdout, stderr)
		},
	}

	f.bind(rc)
	rc.AddCommand(newInitCommand(f, stdout, stderr))
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func (f *flags) bind(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "", "Configuration file to read from.")
	pf.StringVar(&f.database, "db", "", "Path of the SQLite database file.")
	pf.IntVar(&f.pageSize, "page-size", 0, "Items shown per page.")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: trace, debug, info, warn or error.")
}

func newInitCommand(f *flags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database tables and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, f, stderr)
			if err != nil {
				return err
			}
			err = db.Run(cmd.Context(), &cfg.Database, log, func(ctx context.Context, m *db.Manager) error {
				tables, err := m.Tables(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Database %s is ready with tables %v\n", cfg.Database.Path, tables)
				return nil
			})
			return err
		},
	}
}

// setup loads the configuration, applies flag overrides and builds the logger
func setup(cmd *cobra.Command, f *flags, stderr io.Writer) (*config.Config, hclog.Logger, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, nil, err
	}

	pf := cmd.Flags()
	if pf.Changed("db") {
		cfg.Database.Path = f.database
	}
	if pf.Changed("page-size") {
		cfg.UI.PageSize = f.pageSize
	}
	if pf.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return cfg, cfg.Logging.NewLogger(stderr), nil
}

func interactive(ctx context.Context, cfg *config.Config, log hclog.Logger, stdin io.ReadCloser, stdout, stderr io.Writer) error {
	cache, err := redis.NewManager(&cfg.Cache, log)
	if err != nil {
		return err
	}
	defer cache.Close()

	if cache.Enabled() {
		err := cache.Ping(ctx)
		switch {
		case redis.IsConnectionFailed(err):
			log.Warn("search cache unavailable, continuing without it", "addr", cfg.Cache.GetAddr(), "error", err)
			cache = nil
		case err != nil:
			return err
		}
	}

	console, err := prompt.NewConsole(prompt.ConsoleConfig{
		Stdin:       stdin,
		Stdout:      stdout,
		Stderr:      stderr,
		HistoryFile: cfg.UI.HistoryFile,
	})
	if err != nil {
		return fmt.Errorf("failed to open console: %w", err)
	}
	defer console.Close()

	defer func() {
		if cache.Enabled() {
			log.Info("search cache stats", cache.Stats().Fields()...)
		}
	}()

	return db.Run(ctx, &cfg.Database, log, func(ctx context.Context, m *db.Manager) error {
		catalog := service.New(m, service.Options{
			Prompter:    console,
			Out:         console.Stdout(),
			Cache:       cache,
			Logger:      log,
			PageSize:    cfg.UI.PageSize,
			MaxAttempts: cfg.UI.MaxAttempts,
		})
		return menu.New(catalog, console, console.Stdout(), log).Run(ctx)
	})
}
