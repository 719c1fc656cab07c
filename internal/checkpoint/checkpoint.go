// Package checkpoint snapshots a store's working directory into a git
// history around mutating operations.
//
// A Manager is bound to one directory. The repository is created on first
// use. Each snapshot stages every change and commits it with a message
// describing the operation. A commit that fails (typically because nothing
// changed) is expected and is not reported as an error.
package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/roach88/taskstore/internal/metrics"
)

// Label describes the operation a snapshot is taken around.
type Label struct {
	// Message is the human-readable summary, used as the commit subject.
	Message string

	// Function identifies the wrapped operation, if any.
	Function string

	// Args and Kwargs capture the operation's arguments.
	Args   []any
	Kwargs map[string]any

	// PreOperation marks a snapshot taken before the operation ran.
	PreOperation bool
}

const messageTemplate = `{{.Message}}
{{- if .Function}}

Function: {{.Function}}
Args: {{printf "%v" .Args}}
Kwargs: {{printf "%v" .Kwargs}}
{{- end}}
{{- if .PreOperation}}

Snapshot taken before the operation ran.
{{- end}}
`

var commitMessage = template.Must(template.New("checkpoint").Parse(messageTemplate))

// Render returns the commit message for label.
func Render(label Label) (string, error) {
	var buf bytes.Buffer
	if err := commitMessage.Execute(&buf, label); err != nil {
		return "", fmt.Errorf("render checkpoint message: %w", err)
	}
	return buf.String(), nil
}

// Commit is one entry of the checkpoint history.
type Commit struct {
	Hash    string    `json:"hash"`
	When    time.Time `json:"when"`
	Subject string    `json:"subject"`
}

// Manager takes snapshots of a single working directory.
type Manager struct {
	dir         string
	gitBinary   string
	authorName  string
	authorEmail string
	log         log.FieldLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithGitBinary sets the git executable.
func WithGitBinary(binary string) Option {
	return func(m *Manager) { m.gitBinary = binary }
}

// WithAuthor sets the identity recorded on snapshot commits.
func WithAuthor(name, email string) Option {
	return func(m *Manager) { m.authorName, m.authorEmail = name, email }
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(m *Manager) { m.log = l }
}

// New returns a Manager for dir.
func New(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:         dir,
		gitBinary:   "git",
		authorName:  "taskstore",
		authorEmail: "taskstore@localhost",
		log:         log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the managed working directory.
func (m *Manager) Dir() string { return m.dir }

// Ensure initializes a repository in the working directory if one does
// not already exist. It reports whether a repository was created.
func (m *Manager) Ensure(ctx context.Context) (bool, error) {
	if _, _, err := m.git(ctx, "status"); err == nil {
		return false, nil
	}
	if _, stderr, err := m.git(ctx, "init"); err != nil {
		return false, fmt.Errorf("git init: %w: %s", err, stderr)
	}
	m.log.WithField("dir", m.dir).Debug("initialized checkpoint repository")
	return true, nil
}

// Snapshot stages every change in the working directory and commits it.
func (m *Manager) Snapshot(ctx context.Context, label Label) error {
	if _, err := m.Ensure(ctx); err != nil {
		return err
	}
	if _, stderr, err := m.git(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("git add: %w: %s", err, stderr)
	}

	message, err := Render(label)
	if err != nil {
		return err
	}

	stdout, _, err := m.git(ctx, "commit", "--no-verify", "-m", message)
	if err != nil {
		// Nothing to commit is the usual cause.
		metrics.CheckpointsTotal.WithLabelValues(metrics.Skipped).Inc()
		m.log.WithFields(log.Fields{
			"dir":    m.dir,
			"label":  label.Message,
			"err":    err,
			"stdout": strings.TrimSpace(stdout),
		}).Debug("checkpoint commit skipped")
		return nil
	}
	metrics.CheckpointsTotal.WithLabelValues(metrics.Ok).Inc()
	return nil
}

// With runs op between checkpoints. When label.PreOperation is set, a
// snapshot is taken first. A closing snapshot is always attempted,
// including when op fails or panics. The error of op is returned
// unchanged; snapshot failures are returned only when op succeeded.
func (m *Manager) With(ctx context.Context, label Label, op func(ctx context.Context) error) (err error) {
	if label.PreOperation {
		if preErr := m.Snapshot(ctx, label); preErr != nil {
			m.log.WithFields(log.Fields{"dir": m.dir, "err": preErr}).
				Warn("pre-operation checkpoint failed")
		}
	}

	post := label
	post.PreOperation = false

	defer func() {
		// The closing snapshot must run even when op ended through cancellation.
		snapErr := m.Snapshot(context.WithoutCancel(ctx), post)
		if snapErr == nil {
			return
		}
		m.log.WithFields(log.Fields{"dir": m.dir, "err": snapErr}).
			Warn("checkpoint failed")
		if err == nil {
			err = snapErr
		}
	}()

	return op(ctx)
}

// Count returns the number of commits reachable from HEAD.
func (m *Manager) Count(ctx context.Context) (int, error) {
	if _, _, err := m.git(ctx, "rev-parse", "--verify", "-q", "HEAD"); err != nil {
		return 0, nil
	}
	stdout, stderr, err := m.git(ctx, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0, fmt.Errorf("git rev-list: %w: %s", err, stderr)
	}
	n, err := strconv.Atoi(strings.TrimSpace(stdout))
	if err != nil {
		return 0, fmt.Errorf("parse commit count %q: %w", stdout, err)
	}
	return n, nil
}

// History returns up to limit commits, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]Commit, error) {
	if _, _, err := m.git(ctx, "rev-parse", "--verify", "-q", "HEAD"); err != nil {
		return nil, nil
	}
	args := []string{"log", "--format=%H%x1f%aI%x1f%s"}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}
	stdout, stderr, err := m.git(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("git log: %w: %s", err, stderr)
	}

	var commits []Commit
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		fields := strings.SplitN(line, "\x1f", 3)
		if len(fields) != 3 {
			continue
		}
		when, err := time.Parse(time.RFC3339, fields[1])
		if err != nil {
			return nil, fmt.Errorf("parse commit time %q: %w", fields[1], err)
		}
		commits = append(commits, Commit{Hash: fields[0], When: when, Subject: fields[2]})
	}
	return commits, nil
}

// git runs a git command against the managed directory.
func (m *Manager) git(ctx context.Context, args ...string) (string, string, error) {
	command := append([]string{
		"--work-tree=" + m.dir,
		"--git-dir=" + filepath.Join(m.dir, ".git"),
		"-c", "user.name=" + m.authorName,
		"-c", "user.email=" + m.authorEmail,
		"-c", "commit.gpgsign=false",
	}, args...)

	cmd := exec.CommandContext(ctx, m.gitBinary, command...)
	cmd.Dir = m.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}
