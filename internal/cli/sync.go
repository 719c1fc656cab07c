package cli

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/taskstore/internal/jobs"
	"github.com/roach88/taskstore/internal/taskstore"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Async bool
}

// SyncResult is the outcome of the sync command.
type SyncResult struct {
	User   string `json:"user"`
	OK     bool   `json:"ok"`
	Queued bool   `json:"queued,omitempty"`
}

func (r SyncResult) String() string {
	if r.Queued {
		return fmt.Sprintf("Synchronization of %s ran in the background", r.User)
	}
	return fmt.Sprintf("Synchronized %s", r.User)
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <user>",
		Short: "Synchronize a user's task store with the server",
		Long: `Run the task engine's sync inside a checkpoint.

A failed sync is recorded in the store's activity log. Without --async the
command then exits with status 1. With --async the sync runs on the job
runner and its outcome is only visible in the activity log.

Examples:
  taskstore sync alice
  taskstore sync alice --async`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Async, "async", false, "queue the sync on the job runner")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command, username string) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	if opts.Async {
		return runSyncAsync(ctx, opts, f, username)
	}

	e, err := openEnv(opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.Close()

	ts, err := e.manager.GetOrCreateStore(ctx, username)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to open task store", err)
	}

	ok, err := ts.SyncInline(ctx)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeSync, fmt.Sprintf("failed to sync %s", username), err)
	}
	if !ok {
		return f.Fail(ExitFailure, ErrCodeSync,
			fmt.Sprintf("sync of %s failed; see `taskstore log %s`", username, username), nil)
	}
	return f.Success(SyncResult{User: username, OK: true})
}

// runSyncAsync queues the sync on a job runner that lives as long as the
// command, then waits for the runner to drain.
func runSyncAsync(ctx context.Context, opts *SyncOptions, f *OutputFormatter, username string) error {
	queue := jobs.NewQueue(jobs.WithLogger(log.StandardLogger()))
	done := make(chan error, 1)
	go func() { done <- queue.Run(ctx) }()

	e, err := openEnv(opts.RootOptions, f, taskstore.WithRunner(queue))
	if err != nil {
		queue.Close()
		<-done
		return err
	}
	defer e.Close()

	ts, err := e.manager.GetOrCreateStore(ctx, username)
	if err != nil {
		queue.Close()
		<-done
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to open task store", err)
	}

	syncErr := ts.Sync(ctx)
	queue.Close()
	if runErr := <-done; runErr != nil {
		return f.Fail(ExitFailure, ErrCodeSync, "job runner stopped", runErr)
	}
	if syncErr != nil {
		return f.Fail(ExitFailure, ErrCodeSync, fmt.Sprintf("failed to queue sync of %s", username), syncErr)
	}
	return f.Success(SyncResult{User: username, OK: true, Queued: true})
}
