// Package cli wires the chatvault commands: full and incremental
// exports of the local message archive, contact re-resolution, and
// attachment processing.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/chatdb"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/exporter"
	"github.com/chatvault/chatvault/internal/identity"
	"github.com/chatvault/chatvault/internal/logging"
	"github.com/chatvault/chatvault/internal/mappings"
)

// App holds shared CLI configuration.
type App struct {
	ConfigPath  string
	DBPath      string
	JSON        bool
	Verbose     bool
	NoDirectory bool
	ShowVersion bool
}

// Execute runs the CLI entrypoint.
func Execute() {
	app := &App{}
	rootCmd := newRootCmd(app)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatvault",
		Short: "Export the local Messages archive to a portable dataset",
		Long:  "chatvault reads the local Messages SQLite store, recovers text from rich-text bodies, resolves sender identities, and maintains a portable JSON dataset across incremental runs.",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if app.ShowVersion {
				fmt.Println(Version)
				os.Exit(0)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.ShowVersion {
				fmt.Println(Version)
				return nil
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "path to config file (default ~/.chatvault/config.toml)")
	cmd.PersistentFlags().StringVar(&app.DBPath, "db", "", "path to chat.db (or set CHATVAULT_DB)")
	cmd.PersistentFlags().BoolVar(&app.JSON, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&app.Verbose, "verbose", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&app.NoDirectory, "no-directory", false, "disable OS contact directory lookups")
	cmd.PersistentFlags().BoolVar(&app.ShowVersion, "version", false, "print version")

	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newUpdateCmd(app))
	cmd.AddCommand(newContactsCmd(app))
	cmd.AddCommand(newAttachmentsCmd(app))
	cmd.AddCommand(newDBCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// env is the assembled run environment shared by all commands.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *chatdb.Store
	dbPath string
	exp    *exporter.Exporter
}

func (e *env) close() {
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

// setup loads config, opens the source store, and loads the mapping
// store. allowFreshMappings controls the version mismatch policy: a
// full export may proceed with a fresh store (the old file is left in
// place), an update must not reconcile against state it cannot read.
func (a *App) setup(allowFreshMappings bool) (*env, error) {
	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogPath(), a.Verbose)
	if err != nil {
		return nil, err
	}

	dbPath, err := config.ResolveChatDBPath(a.DBPath, cfg.ChatDB)
	if err != nil {
		return nil, err
	}

	store, err := chatdb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open message store %s: %w", dbPath, err)
	}

	maps, err := mappings.Load(cfg.MappingsPath())
	if err != nil {
		if !errors.Is(err, mappings.ErrVersionMismatch) || !allowFreshMappings {
			_ = store.Close()
			if errors.Is(err, mappings.ErrVersionMismatch) {
				return nil, fmt.Errorf("%w; run a full export to rebuild the mapping store", err)
			}
			return nil, err
		}
		logger.Warn("mapping store version mismatch; starting fresh",
			zap.String("path", cfg.MappingsPath()))
		maps = mappings.New()
	}

	var dir identity.Directory = identity.NoDirectory{}
	if cfg.DirectoryLookup && !a.NoDirectory {
		ab, err := identity.NewAddressBookDirectory("")
		if err != nil {
			logger.Warn("contact directory unavailable", zap.Error(err))
		} else {
			logger.Debug("contact directory", zap.Strings("paths", ab.Paths()))
			dir = ab
		}
	}

	e := &env{
		cfg:    cfg,
		logger: logger,
		store:  store,
		dbPath: dbPath,
	}
	e.exp = exporter.New(cfg, store, maps, dir, exporter.SipsConverter{}, logger)
	return e, nil
}
