package taskstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/roach88/taskstore/internal/fsutil"
)

// MigrationStep upgrades a store to Version.
type MigrationStep struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, ts *TaskStore) error
}

// Migrator applies upgrade steps to stores whose metadata version is
// behind. Steps run in ascending version order; the version is recorded
// after each step so an interrupted upgrade resumes where it stopped.
type Migrator struct {
	steps []MigrationStep
}

// NewMigrator returns a migrator with the given steps. Versions must be
// strictly increasing.
func NewMigrator(steps ...MigrationStep) *Migrator {
	return &Migrator{steps: steps}
}

// Latest returns the highest version a store can be upgraded to.
func (mg *Migrator) Latest() int {
	if mg == nil || len(mg.steps) == 0 {
		return 0
	}
	return mg.steps[len(mg.steps)-1].Version
}

// Upgrade applies every step newer than the store's version.
func (mg *Migrator) Upgrade(ctx context.Context, ts *TaskStore) error {
	if mg == nil {
		return nil
	}
	current := ts.meta.Version()
	for _, step := range mg.steps {
		if step.Version <= current {
			continue
		}
		if err := step.Apply(ctx, ts); err != nil {
			return fmt.Errorf("migrate %s to v%d (%s): %w", ts.record.Username, step.Version, step.Name, err)
		}
		if err := ts.meta.SetVersion(step.Version); err != nil {
			return fmt.Errorf("migrate %s to v%d: %w", ts.record.Username, step.Version, err)
		}
		current = step.Version
		ts.log.WithField("version", step.Version).Info("task store upgraded: " + step.Name)
	}
	return nil
}

// DefaultSteps are the upgrades shipped with taskstore.
var DefaultSteps = []MigrationStep{
	{Version: 1, Name: "ignore lock file", Apply: ensureLockIgnored},
	{Version: 2, Name: "set data location", Apply: ensureDataLocation},
}

func ensureLockIgnored(_ context.Context, ts *TaskStore) error {
	path := ts.path(GitignoreFile)
	data, err := afero.ReadFile(ts.m.fs, path)
	if err != nil {
		if ok, _ := fsutil.Exists(ts.m.fs, path); ok {
			return err
		}
		data = nil
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == ".lock" {
			return nil
		}
	}
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		data = append(data, '\n')
	}
	return fsutil.WriteFileAtomic(ts.m.fs, path, append(data, ".lock\n"...), 0644)
}

func ensureDataLocation(_ context.Context, ts *TaskStore) error {
	if _, ok := ts.rc.Own().Get("data.location"); ok {
		return nil
	}
	return ts.rc.Set("data.location", ts.record.LocalPath)
}
