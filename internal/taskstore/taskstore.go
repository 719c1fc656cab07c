package taskstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/roach88/taskstore/internal/checkpoint"
	"github.com/roach88/taskstore/internal/extras"
	"github.com/roach88/taskstore/internal/fsutil"
	"github.com/roach88/taskstore/internal/jobs"
	"github.com/roach88/taskstore/internal/metadata"
	"github.com/roach88/taskstore/internal/metrics"
	"github.com/roach88/taskstore/internal/store"
	"github.com/roach88/taskstore/internal/taskrc"
	"github.com/roach88/taskstore/internal/taskw"
)

// TaskStore is an open handle on one user's store.
type TaskStore struct {
	m      *Manager
	record store.Record
	log    *log.Entry

	meta   *metadata.Store
	rc     *taskrc.TaskRc
	client *taskw.Client
	git    *checkpoint.Manager
}

func (m *Manager) open(rec store.Record) (*TaskStore, error) {
	ts := &TaskStore{
		m:      m,
		record: rec,
		log:    m.log.WithField("user", rec.Username),
	}
	ts.git = checkpoint.New(rec.LocalPath,
		checkpoint.WithGitBinary(m.settings.GitBinary),
		checkpoint.WithLogger(ts.log),
	)

	meta, err := metadata.Open(m.fs, ts.path(MetadataFile), map[string]any{
		metadata.KeyFiles:  map[string]any{},
		metadata.KeyTaskrc: ts.path(TaskrcFile),
	})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", rec.Username, err)
	}
	ts.meta = meta

	if err := ts.Reload(); err != nil {
		return nil, err
	}
	return ts, nil
}

func (ts *TaskStore) path(name string) string {
	return filepath.Join(ts.record.LocalPath, name)
}

// Username returns the owning user's name.
func (ts *TaskStore) Username() string { return ts.record.Username }

// Dir returns the store's working directory.
func (ts *TaskStore) Dir() string { return ts.record.LocalPath }

// Record returns a copy of the store's registration.
func (ts *TaskStore) Record() store.Record { return ts.record }

// Configured reports whether the store has been autoconfigured.
func (ts *TaskStore) Configured() bool { return ts.record.Configured }

// Metadata returns the store's metadata document.
func (ts *TaskStore) Metadata() *metadata.Store { return ts.meta }

// TaskRc returns the store's engine config.
func (ts *TaskStore) TaskRc() *taskrc.TaskRc { return ts.rc }

// Client returns the engine client bound to the store's config.
func (ts *TaskStore) Client() *taskw.Client { return ts.client }

// Reload drops the config and engine client handles and rebuilds them
// from disk. Call it after anything rewrites the config behind the
// handle's back.
func (ts *TaskStore) Reload() error {
	rc, err := taskrc.Open(ts.m.fs, ts.meta.GetString(metadata.KeyTaskrc, ts.path(TaskrcFile)),
		taskrc.WithClock(ts.m.now))
	if err != nil {
		return fmt.Errorf("open store %s: %w", ts.record.Username, err)
	}
	ts.rc = rc
	ts.refreshClient()
	return nil
}

// refreshClient rebuilds the engine client so newly declared UDAs are
// accepted as field prefixes.
func (ts *TaskStore) refreshClient() {
	udas := ts.rc.UDAs()
	names := make([]string, 0, len(udas))
	for name := range udas {
		names = append(names, name)
	}
	sort.Strings(names)

	ts.client = taskw.NewClient(ts.rc.Path(),
		taskw.WithBinary(ts.m.settings.TaskBinary),
		taskw.WithWritableFields(names...),
		taskw.WithLogger(ts.log),
	)
}

// save applies extras and persists the registration.
func (ts *TaskStore) save(ctx context.Context) error {
	if _, err := ts.ApplyExtras(); err != nil {
		return err
	}
	if err := ts.m.db.Save(ctx, ts.record); err != nil {
		return fmt.Errorf("save store %s: %w", ts.record.Username, err)
	}
	return nil
}

// Version returns the store layout version recorded in metadata.
func (ts *TaskStore) Version() int { return ts.meta.Version() }

// WithCheckpoint runs op between checkpoints of the store directory.
func (ts *TaskStore) WithCheckpoint(ctx context.Context, label checkpoint.Label, op func(ctx context.Context) error) error {
	return ts.git.With(ctx, label, op)
}

// Checkpoint snapshots the store directory.
func (ts *TaskStore) Checkpoint(ctx context.Context, message string) error {
	return ts.git.Snapshot(ctx, checkpoint.Label{Message: message})
}

// History returns up to limit checkpoints, newest first.
func (ts *TaskStore) History(ctx context.Context, limit int) ([]checkpoint.Commit, error) {
	return ts.git.History(ctx, limit)
}

// Sync synchronizes the store with the server. When the manager has a
// job runner the work is queued and Sync returns once it is accepted;
// otherwise it runs inline.
//
// Engine failures never surface here: they are recorded as activity log
// errors. Callers that need the outcome use SyncInline, or poll
// ActivityLog after an asynchronous sync.
func (ts *TaskStore) Sync(ctx context.Context) error {
	if ts.m.runner == nil {
		_, err := ts.SyncInline(ctx)
		return err
	}

	job := jobs.Func{
		JobName: "sync " + ts.record.Username,
		Fn: func(ctx context.Context) error {
			_, err := ts.SyncInline(ctx)
			return err
		},
	}
	if !ts.m.runner.Enqueue(job) {
		return ErrRunnerClosed
	}
	ts.log.Debug("sync queued")
	return nil
}

// SyncInline runs the engine's sync inside a "Synchronization" checkpoint.
// ok reports whether the engine succeeded. A failing engine is recorded
// in the activity log and is not an error; err is set only when the
// failure could not be recorded, the engine could not be started, or the
// checkpoint failed.
func (ts *TaskStore) SyncInline(ctx context.Context) (ok bool, err error) {
	label := checkpoint.Label{
		Message:  "Synchronization",
		Function: "taskstore.(*TaskStore).SyncInline",
		Args:     []any{ts.record.Username},
	}

	var syncErr error
	err = ts.git.With(ctx, label, func(ctx context.Context) error {
		syncErr = ts.client.Sync(ctx, false)
		return syncErr
	})

	var ce *taskw.CommandError
	if !errors.As(syncErr, &ce) {
		return syncErr == nil && err == nil, err
	}
	if _, logErr := ts.LogError(ctx,
		"Error while syncing tasks! Err. Code: %d; Std. Error: %s; Std. Out: %s.",
		ce.Code, ce.Stderr, ce.Stdout,
	); logErr != nil {
		return false, logErr
	}
	return false, nil
}

// Autoconfigure provisions sync server credentials for the store: a
// server-side user, a private key and a signed certificate. The config is
// pointed at the server, an initial sync uploads the local replica, and
// the whole operation is checkpointed as "Local store created".
// An already configured store is left alone.
func (ts *TaskStore) Autoconfigure(ctx context.Context) error {
	if ts.record.Configured {
		return nil
	}
	ts.log.Warn("autoconfiguring task store")

	return ts.git.With(ctx, checkpoint.Label{Message: "Local store created"}, func(ctx context.Context) error {
		if err := ts.Reload(); err != nil {
			return err
		}
		return ts.autoconfigure(ctx)
	})
}

func (ts *TaskStore) autoconfigure(ctx context.Context) error {
	taskd := ts.m.settings.Taskd
	username := ts.record.Username

	server, err := ts.ServerConfig()
	if err != nil {
		return err
	}
	caKey, okKey := server.Lookup("ca.key")
	caCert, okCert := server.Lookup("ca.cert")
	if !okKey || !okCert {
		return fmt.Errorf("autoconfigure: server config %s lacks ca.key or ca.cert", server.Path())
	}

	userKey, err := ts.m.authority.AddUser(ctx, taskd.Org, username)
	if err != nil {
		return fmt.Errorf("autoconfigure: %w", err)
	}

	privateKey, err := ts.m.authority.GeneratePrivateKey(ctx)
	if err != nil {
		return fmt.Errorf("autoconfigure: %w", err)
	}
	keyPath := ts.path(PrivateKeyFile)
	if err := fsutil.WriteFileAtomic(ts.m.fs, keyPath, privateKey, 0600); err != nil {
		return fmt.Errorf("autoconfigure: write private key: %w", err)
	}

	cert, err := ts.m.authority.SignCertificate(ctx, SigningRequest{
		PrivateKeyPath: keyPath,
		CAKeyPath:      caKey,
		CACertPath:     caCert,
		Template:       taskd.SigningTemplate,
	})
	if err != nil {
		return fmt.Errorf("autoconfigure: %w", err)
	}
	certPath := ts.path(CertificateFile)
	if err := fsutil.WriteFileAtomic(ts.m.fs, certPath, cert, 0644); err != nil {
		return fmt.Errorf("autoconfigure: write certificate: %w", err)
	}

	credentials := fmt.Sprintf("%s/%s/%s", taskd.Org, username, userKey)
	if err := ts.rc.Update(map[string]string{
		"data.location":     ts.record.LocalPath,
		"taskd.certificate": certPath,
		"taskd.key":         keyPath,
		"taskd.ca":          caCert,
		"taskd.server":      taskd.Server,
		"taskd.credentials": credentials,
	}); err != nil {
		return fmt.Errorf("autoconfigure: %w", err)
	}
	if err := ts.meta.Set(metadata.KeyCredentials, credentials); err != nil {
		return fmt.Errorf("autoconfigure: %w", err)
	}

	ts.record.Configured = true
	if err := ts.save(ctx); err != nil {
		return err
	}
	ts.log.WithField("credentials", credentials).Info("task store autoconfigured")

	return ts.client.Sync(ctx, true)
}

// ApplyExtras validates the store's raw extras text, writes the accepted
// settings to the extras file and includes it from the config.
func (ts *TaskStore) ApplyExtras() (extras.Result, error) {
	extrasPath := ts.meta.GetString(metadata.KeyTaskrcExtras, ts.path(ExtrasFile))
	if _, ok := ts.meta.Get(metadata.KeyTaskrcExtras); !ok {
		if err := ts.meta.Set(metadata.KeyTaskrcExtras, extrasPath); err != nil {
			return extras.Result{}, err
		}
	}

	result, err := extras.New().Apply(ts.m.fs, extrasPath, ts.record.TaskrcExtras, ts.rc)
	if err != nil {
		return result, fmt.Errorf("apply extras for %s: %w", ts.record.Username, err)
	}
	ts.refreshClient()

	if len(result.Errored) > 0 {
		ts.log.WithFields(log.Fields{
			"applied": len(result.Applied),
			"errored": len(result.Errored),
		}).Info("some config overrides were rejected")
	}
	return result, nil
}

// SetExtras replaces the store's raw extras text, applies it and persists
// the registration, inside an "Extras updated" checkpoint.
func (ts *TaskStore) SetExtras(ctx context.Context, text string) (extras.Result, error) {
	var result extras.Result
	label := checkpoint.Label{
		Message:  "Extras updated",
		Function: "taskstore.(*TaskStore).SetExtras",
		Args:     []any{ts.record.Username},
	}
	err := ts.git.With(ctx, label, func(ctx context.Context) error {
		ts.record.TaskrcExtras = text
		var err error
		if result, err = ts.ApplyExtras(); err != nil {
			return err
		}
		return ts.m.db.Save(ctx, ts.record)
	})
	return result, err
}

// Execute runs a user task command through the sanitizing executor,
// inside a checkpoint.
func (ts *TaskStore) Execute(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	label := checkpoint.Label{
		Message:  "Task command",
		Function: "taskstore.(*TaskStore).Execute",
		Args:     toAny(args),
	}
	err = ts.git.With(ctx, label, func(ctx context.Context) error {
		var opErr error
		stdout, stderr, opErr = ts.client.ExecuteSafe(ctx, args...)
		return opErr
	})
	return stdout, stderr, err
}

// LogMessage records an informational activity entry. format is only
// interpreted when args are given.
func (ts *TaskStore) LogMessage(ctx context.Context, format string, args ...any) (store.Entry, error) {
	return ts.logEntry(ctx, false, format, args...)
}

// LogError records an error activity entry.
func (ts *TaskStore) LogError(ctx context.Context, format string, args ...any) (store.Entry, error) {
	return ts.logEntry(ctx, true, format, args...)
}

func (ts *TaskStore) logEntry(ctx context.Context, isError bool, format string, args ...any) (store.Entry, error) {
	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}

	entry, err := ts.m.db.LogEntry(ctx, ts.record.ID, message, isError)
	if err != nil {
		return store.Entry{}, fmt.Errorf("log activity for %s: %w", ts.record.Username, err)
	}

	severity := "message"
	if isError {
		severity = "error"
	}
	metrics.ActivityEntriesTotal.WithLabelValues(severity).Inc()
	return entry, nil
}

// ActivityLog returns the store's activity, most recent first.
func (ts *TaskStore) ActivityLog(ctx context.Context, limit int) ([]store.Entry, error) {
	return ts.m.db.Entries(ctx, ts.record.ID, limit)
}

// CertificateStatus summarizes the credential files the config points at.
func (ts *TaskStore) CertificateStatus() map[string]string {
	results := make(map[string]string, 4)
	for _, setting := range []string{"taskd.certificate", "taskd.key", "taskd.ca"} {
		key := strings.ReplaceAll(setting, ".", "_")
		value := ts.rc.Get(setting, "")
		switch {
		case value == "":
			results[key] = "No file available"
		case strings.Contains(value, "custom"):
			results[key] = "Custom certificate in use"
		default:
			results[key] = "Standard certificate in use"
		}
	}
	results["taskd_trust"] = ts.rc.Get("taskd.trust", "no")
	return results
}

// UsingLocalTaskd reports whether the store syncs against the server
// this service provisions accounts on.
func (ts *TaskStore) UsingLocalTaskd() bool {
	server := ts.m.settings.Taskd.Server
	return server != "" && ts.rc.Get("taskd.server", "") == server
}

// TaskdDataPath returns the server-side transaction file of the store's
// generated account.
func (ts *TaskStore) TaskdDataPath() (string, error) {
	credentials := ts.meta.GetString(metadata.KeyCredentials, "")
	if credentials == "" {
		return "", ErrNoCredentials
	}
	parts := strings.Split(credentials, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("taskd data path: malformed credentials %q", credentials)
	}
	org, uid := parts[0], parts[2]
	return filepath.Join(ts.m.settings.Taskd.Data, "orgs", org, "users", uid, "tx.data"), nil
}

// ServerConfig opens the sync server's own config read-only.
func (ts *TaskStore) ServerConfig() (*taskrc.TaskRc, error) {
	rc, err := taskrc.Open(ts.m.fs, filepath.Join(ts.m.settings.Taskd.Data, "config"), taskrc.ReadOnly())
	if err != nil {
		return nil, fmt.Errorf("open server config: %w", err)
	}
	return rc, nil
}

func (ts *TaskStore) String() string {
	return fmt.Sprintf("Tasks for %s", ts.record.Username)
}

func toAny(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}
