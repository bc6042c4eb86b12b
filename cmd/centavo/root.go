package main

import (
	"context"
	"fmt"
	"log"

	"github.com/centavo-app/centavo/internal/config"
	"github.com/centavo-app/centavo/internal/ledger/db"
	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/centavo-app/centavo/internal/ledger/outbox"
	"github.com/centavo-app/centavo/internal/ledger/store"
	"github.com/centavo-app/centavo/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config

	// newLogger builds per-component loggers writing to the rotated log
	// file (and stderr in daemon mode). Set in PersistentPreRunE.
	newLogger func(prefix string) *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "centavo",
	Short: "Local-first expense tracker with background sync",
	Long: `Centavo is a local-first expense tracker. Every read and write goes to
an embedded SQLite database, so the app works identically with or without
connectivity. Mutations are journaled in an outbox and a background engine
drains them to the remote backend whenever the device is online.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		newLogger = logging.New(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Stderr:     cmd.Name() == "daemon",
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.centavo/config.yaml)")
	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Record Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
}

// appEnv bundles the opened database, store and resolved user for one
// command invocation.
type appEnv struct {
	cfg   *config.Config
	db    *db.DB
	store *store.Store
	queue *outbox.Queue
	user  *model.User
}

// openEnv opens the database, initializes the schema and resolves the
// configured user, creating the profile on first use.
func openEnv(ctx context.Context) (*appEnv, error) {
	if cfg.UserEmail == "" {
		return nil, fmt.Errorf("no user configured; run 'centavo init --email you@example.com' first")
	}

	database, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.InitSchemaContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	queue := outbox.New(database)
	st := store.New(database, queue, newLogger("[store] "))

	user, err := st.EnsureUser(ctx, cfg.UserEmail, cfg.UserName)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	return &appEnv{cfg: cfg, db: database, store: st, queue: queue, user: user}, nil
}

// Close releases the database.
func (e *appEnv) Close() {
	if err := e.db.Close(); err != nil {
		newLogger("[cli] ").Printf("Warning: failed to close database: %v", err)
	}
}
