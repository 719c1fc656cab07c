package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/taskstore/internal/config"
	"github.com/roach88/taskstore/internal/store"
	"github.com/roach88/taskstore/internal/taskstore"
)

// env is what every store command needs: settings, the registry database
// and a manager over both.
type env struct {
	settings config.Settings
	db       *store.Store
	manager  *taskstore.Manager
}

// openEnv loads settings and opens the database. Extra manager options
// are appended after the defaults.
func openEnv(opts *RootOptions, f *OutputFormatter, extra ...taskstore.Option) (*env, error) {
	settings, err := config.Resolve(opts.Config)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeSettings, "failed to load settings", err)
	}
	f.VerboseLog("storage: %s", settings.StoragePath)

	if err := os.MkdirAll(filepath.Dir(settings.Database), 0755); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	db, err := store.Open(settings.Database)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}

	options := append([]taskstore.Option{
		taskstore.WithMigrator(taskstore.NewMigrator(taskstore.DefaultSteps...)),
		taskstore.WithLogger(log.StandardLogger()),
	}, extra...)

	return &env{
		settings: settings,
		db:       db,
		manager:  taskstore.New(db, settings, options...),
	}, nil
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		log.WithField("err", err).Warn("error closing database")
	}
}

// lookup opens an existing store, mapping unknown users to a command error.
func (e *env) lookup(ctx context.Context, f *OutputFormatter, username string) (*taskstore.TaskStore, error) {
	ts, err := e.manager.Lookup(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no task store for %s", username), nil)
	} else if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeGeneric, "failed to open task store", err)
	}
	return ts, nil
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute (as in tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
