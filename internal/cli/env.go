package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/bypassd/internal/config"
	"github.com/roach88/bypassd/internal/learning"
	"github.com/roach88/bypassd/internal/store"
)

// formatter builds the OutputFormatter for cmd from the global flags.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openStore opens the learning database named in cfg, creating its
// directory when needed. The caller closes it.
func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", cfg.Store.Path), err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// loadLearning migrates legacy keys and loads the persisted learning state.
func loadLearning(ctx context.Context, kv store.KV) (*learning.Store, error) {
	ls := learning.New(kv, learning.WithLogger(slog.Default()))
	if migrated, err := ls.Migrate(ctx); err != nil {
		slog.Warn("legacy migration failed, continuing", "error", err)
	} else if migrated {
		slog.Info("migrated legacy learning data")
	}
	if err := ls.Load(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load learning data", err)
	}
	return ls, nil
}

// withStore loads config, opens the database and runs fn.
func withStore(opts *RootOptions, fn func(cfg *config.Config, st *store.Store) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)
	return fn(cfg, st)
}
