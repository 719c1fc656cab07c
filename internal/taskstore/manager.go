// Package taskstore manages per-user task stores.
//
// A store is a directory holding the engine's config file, a JSON metadata
// document, the engine's data files and a git history of every mutation.
// The Manager registers stores in the database and hands out TaskStore
// handles. A TaskStore composes the config, metadata, extras, checkpoint
// and engine packages.
//
// Handles are not safe for concurrent use. At most one in-flight operation
// per store is assumed and not enforced; the .lock file is only excluded
// from the checkpoint history.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/roach88/taskstore/internal/config"
	"github.com/roach88/taskstore/internal/fsutil"
	"github.com/roach88/taskstore/internal/jobs"
	"github.com/roach88/taskstore/internal/store"
)

// Fixed file names inside a store directory.
const (
	MetadataFile    = ".meta"
	TaskrcFile      = ".taskrc"
	ExtrasFile      = ".taskrc_extras"
	GitignoreFile   = ".gitignore"
	PrivateKeyFile  = "private.key.pem"
	CertificateFile = "private.certificate.pem"
)

// provisioningError is recorded when autoconfiguration fails in debug mode.
const provisioningError = "Error encountered while configuring task store."

// Runner accepts background jobs. *jobs.Queue satisfies it.
type Runner interface {
	Enqueue(j jobs.Job) bool
}

// IDGenerator produces unique identifiers for store directories and secrets.
type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

// Manager creates, registers and opens task stores.
type Manager struct {
	db        *store.Store
	settings  config.Settings
	fs        afero.Fs
	runner    Runner
	authority CertificateAuthority
	now       func() time.Time
	ids       IDGenerator
	migrator  *Migrator
	log       log.FieldLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithFs sets the filesystem store files are written to.
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) { m.fs = fs }
}

// WithRunner makes Sync queue work on r instead of running inline.
func WithRunner(r Runner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithAuthority sets the certificate authority used by Autoconfigure.
func WithAuthority(a CertificateAuthority) Option {
	return func(m *Manager) { m.authority = a }
}

// WithClock overrides the clock used for config file headers.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides random UUID generation.
func WithIDGenerator(ids IDGenerator) Option {
	return func(m *Manager) { m.ids = ids }
}

// WithMigrator sets the upgrade steps run whenever a store is fetched.
func WithMigrator(mg *Migrator) Option {
	return func(m *Manager) { m.migrator = mg }
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(m *Manager) { m.log = l }
}

// New returns a Manager persisting registrations in db.
func New(db *store.Store, settings config.Settings, opts ...Option) *Manager {
	m := &Manager{
		db:       db,
		settings: settings,
		fs:       afero.NewOsFs(),
		now:      time.Now,
		ids:      uuidGenerator{},
		migrator: NewMigrator(),
		log:      log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.authority == nil {
		m.authority = NewTaskdAuthority(settings.Taskd)
	}
	return m
}

// Settings returns the settings the manager was built with.
func (m *Manager) Settings() config.Settings { return m.settings }

// GetOrCreateStore returns the user's store, creating and registering it
// on first access. A new store gets its own directory under
// <storage>/<user>/, an ignore file, a secret id and an (empty) extras
// include. Migrations run on every call.
func (m *Manager) GetOrCreateStore(ctx context.Context, username string) (*TaskStore, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	rec, created, err := m.db.GetOrCreate(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get or create store: %w", err)
	}

	dirty := created
	if rec.LocalPath == "" {
		path, err := m.locateOrCreate(username)
		if err != nil {
			return nil, fmt.Errorf("get or create store for %s: %w", username, err)
		}
		rec.LocalPath = path
		dirty = true
	}
	if rec.SecretID == "" {
		rec.SecretID = m.ids.NewID()
		dirty = true
	}

	ts, err := m.open(rec)
	if err != nil {
		return nil, err
	}

	if dirty {
		if err := ts.save(ctx); err != nil {
			return nil, err
		}
		m.log.WithFields(log.Fields{
			"user": username,
			"path": rec.LocalPath,
		}).Info("task store created")
	}

	if err := m.migrator.Upgrade(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// Lookup opens an existing store without creating one. It returns
// store.ErrNotFound for unknown users.
func (m *Manager) Lookup(ctx context.Context, username string) (*TaskStore, error) {
	rec, err := m.db.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if rec.LocalPath == "" {
		return nil, fmt.Errorf("lookup %s: %w", username, ErrNoTaskFolders)
	}
	ts, err := m.open(rec)
	if err != nil {
		return nil, err
	}
	if err := m.migrator.Upgrade(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// Provision makes sure the user has a configured store. Autoconfiguration
// failures are returned, unless settings.Debug is set, in which case they
// are logged and recorded in the store's activity log.
func (m *Manager) Provision(ctx context.Context, username string) (*TaskStore, error) {
	ts, err := m.GetOrCreateStore(ctx, username)
	if err != nil {
		return nil, err
	}
	if ts.Configured() {
		return ts, nil
	}

	if err := ts.Autoconfigure(ctx); err != nil {
		if !m.settings.Debug {
			return ts, err
		}
		m.log.WithFields(log.Fields{
			"user": username,
			"err":  err,
		}).Error(provisioningError)
		if _, logErr := ts.LogError(ctx, provisioningError); logErr != nil {
			return ts, logErr
		}
	}
	return ts, nil
}

// FindStoreDirectory returns the single store directory under
// <storage>/<username>. It fails with ErrNoTaskFolders when there is none
// and ErrMultipleTaskFolders when the choice is ambiguous.
func (m *Manager) FindStoreDirectory(username string) (string, error) {
	if err := validateUsername(username); err != nil {
		return "", err
	}
	userDir := filepath.Join(m.settings.StoragePath, username)

	infos, err := afero.ReadDir(m.fs, userDir)
	if err != nil {
		if ok, _ := fsutil.Exists(m.fs, userDir); !ok {
			return "", ErrNoTaskFolders
		}
		return "", fmt.Errorf("read %s: %w", userDir, err)
	}

	var dirs []string
	for _, info := range infos {
		if info.IsDir() {
			dirs = append(dirs, filepath.Join(userDir, info.Name()))
		}
	}
	switch len(dirs) {
	case 0:
		return "", ErrNoTaskFolders
	case 1:
		return dirs[0], nil
	default:
		return "", ErrMultipleTaskFolders
	}
}

func (m *Manager) locateOrCreate(username string) (string, error) {
	path, err := m.FindStoreDirectory(username)
	if err == nil {
		return path, nil
	} else if !errors.Is(err, ErrNoTaskFolders) {
		return "", err
	}

	path = filepath.Join(m.settings.StoragePath, username, m.ids.NewID())
	if err := m.fs.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("create store directory: %w", err)
	}
	ignore := filepath.Join(path, GitignoreFile)
	if err := fsutil.WriteFileAtomic(m.fs, ignore, []byte(".lock\n"), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", GitignoreFile, err)
	}
	return path, nil
}

func validateUsername(username string) error {
	if username == "" || username == "." || username == ".." ||
		strings.ContainsAny(username, `/\`) || strings.ContainsRune(username, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	return nil
}
