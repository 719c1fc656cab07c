// Package taskw runs the external task engine on behalf of a store.
//
// User-supplied arguments always go through SanitizeArgs before reaching
// the engine; arguments are passed as an argv vector and never through a
// shell. Calls block until the engine exits. No timeout is imposed here.
package taskw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/roach88/taskstore/internal/metrics"
)

// CommandError is returned when the engine exits with a nonzero code.
type CommandError struct {
	Command []string
	Stdout  string
	Stderr  string
	Code    int
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("task engine exited with code %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("task engine exited with code %d", e.Code)
}

// IsCommandError reports whether err is or wraps a *CommandError.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

// Client invokes the task engine against one config file.
type Client struct {
	binary     string
	configPath string
	writable   map[string]bool
	log        log.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithBinary sets the engine executable.
func WithBinary(binary string) Option {
	return func(c *Client) { c.binary = binary }
}

// WithWritableFields adds field names, such as user-defined attributes,
// that user input may assign. Read-only fields are never added, even when
// a user-defined attribute shadows one.
func WithWritableFields(fields ...string) Option {
	return func(c *Client) {
		lowered := make([]string, 0, len(fields))
		for _, f := range fields {
			lowered = append(lowered, strings.ToLower(f))
		}
		for f := range WritableFields(lowered...) {
			c.writable[f] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient returns a Client for the config file at configPath.
func NewClient(configPath string, opts ...Option) *Client {
	c := &Client{
		binary:     "task",
		configPath: configPath,
		writable:   WritableFields(),
		log:        log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfigPath returns the config file the engine is pointed at.
func (c *Client) ConfigPath() string { return c.configPath }

// Fields returns the field prefixes accepted from user input.
func (c *Client) Fields() []string { return sortedFields(c.writable) }

// Command returns the full argv used to run the engine with args.
func (c *Client) Command(args ...string) []string {
	return append([]string{
		c.binary,
		"rc:" + c.configPath,
		"rc.json.array=TRUE",
		"rc.verbose=nothing",
		"rc.confirmation=no",
	}, args...)
}

// ExecuteSafe sanitizes args and runs the engine.
func (c *Client) ExecuteSafe(ctx context.Context, args ...string) (string, string, error) {
	return c.Execute(ctx, SanitizeArgs(c.writable, args...)...)
}

// Execute runs the engine with args as given. Callers must only pass
// trusted arguments; user input goes through ExecuteSafe.
func (c *Client) Execute(ctx context.Context, args ...string) (string, string, error) {
	command := c.Command(args...)

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	metrics.EngineCommandSecondsTotal.Add(time.Since(started).Seconds())

	if err != nil {
		metrics.EngineCommandsTotal.WithLabelValues(metrics.Fail).Inc()

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", "", fmt.Errorf("run task engine: %w", err)
		}
		ce := &CommandError{
			Command: command,
			Stdout:  strings.TrimSpace(stdout.String()),
			Stderr:  strings.TrimSpace(stderr.String()),
			Code:    exitErr.ExitCode(),
		}
		c.log.WithFields(log.Fields{
			"code":    ce.Code,
			"command": ce.Command,
			"stdout":  ce.Stdout,
			"stderr":  ce.Stderr,
		}).Error("non-zero return code from task engine")
		return ce.Stdout, ce.Stderr, ce
	}

	metrics.EngineCommandsTotal.WithLabelValues(metrics.Ok).Inc()
	return stdout.String(), stderr.String(), nil
}

// Sync synchronizes with the remote server. With init set, the local
// replica is uploaded as the initial state.
func (c *Client) Sync(ctx context.Context, init bool) error {
	args := []string{"sync"}
	if init {
		args = append(args, "init")
	}
	_, _, err := c.Execute(ctx, args...)
	return err
}

// Task is a task record as exported by the engine.
type Task map[string]any

// Export returns the tasks matching filter. The filter is sanitized.
func (c *Client) Export(ctx context.Context, filter ...string) ([]Task, error) {
	stdout, _, err := c.ExecuteSafe(ctx, append([]string{"export"}, filter...)...)
	if err != nil {
		return nil, err
	}

	stdout = strings.TrimSpace(stdout)
	if stdout == "" {
		return nil, nil
	}
	var tasks []Task
	if err := json.Unmarshal([]byte(stdout), &tasks); err != nil {
		return nil, fmt.Errorf("decode engine export: %w", err)
	}
	return tasks, nil
}
