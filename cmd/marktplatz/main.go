// Command marktplatz runs the listing pipeline from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raine/marktplatz-bot/internal/config"
	"github.com/raine/marktplatz-bot/internal/pipeline"
	"github.com/raine/marktplatz-bot/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	locale  string
)

// app holds what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	cfg    *config.Config
	tables *config.Tables
	store  *storage.SQLiteStore
	pg     *storage.PostgresCategorySource
}

var current = &app{}

var rootCmd = &cobra.Command{
	Use:           "marktplatz",
	Short:         "Analyze item photos and resolve marketplace categories",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

		config.LoadEnvFile()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if locale != "" {
			cfg.Locale = locale
		}

		tables, err := config.LoadTables(cfg.TablesPath)
		if err != nil {
			return err
		}

		store, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}

		current.cfg = cfg
		current.tables = tables
		current.store = store
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		current.close()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&locale, "locale", "", "locale for category names (default from MARKTPLATZ_LOCALE)")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newCategoriesCmd())
}

// categorySource returns the Postgres category store when one is configured,
// and the local SQLite store otherwise.
func (a *app) categorySource(ctx context.Context) (pipeline.CategorySource, error) {
	if a.cfg.CategoryStoreDSN == "" {
		return a.store, nil
	}
	if a.pg == nil {
		pg, err := storage.OpenPostgresCategorySource(ctx, a.cfg.CategoryStoreDSN)
		if err != nil {
			return nil, err
		}
		a.pg = pg
	}
	return a.pg, nil
}

func (a *app) close() {
	if a.pg != nil {
		a.pg.Close()
		a.pg = nil
	}
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		current.close()
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
