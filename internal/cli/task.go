package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/taskstore/internal/taskw"
)

// TaskResult is the engine's output for one task command.
type TaskResult struct {
	User   string `json:"user"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr,omitempty"`
}

func (r TaskResult) String() string {
	return strings.TrimRight(r.Stdout, "\n")
}

// NewTaskCommand creates the task command.
func NewTaskCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task <user> -- <args>...",
		Short: "Run a task engine command in a user's store",
		Long: `Run the task engine against a user's store. Arguments are sanitized:
only writable field prefixes such as due: or project: are passed as
fields, everything else becomes description text. A checkpoint is taken
whether or not the command succeeds.

Examples:
  taskstore task alice -- add due:tomorrow buy milk
  taskstore task alice -- export`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(rootOpts, cmd, args[0], args[1:])
		},
	}
	return cmd
}

func runTask(opts *RootOptions, cmd *cobra.Command, username string, args []string) error {
	f := newFormatter(opts, cmd)
	e, err := openEnv(opts, f)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := commandContext(cmd)
	ts, err := e.manager.GetOrCreateStore(ctx, username)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to open task store", err)
	}

	stdout, stderr, err := ts.Execute(ctx, args...)
	var ce *taskw.CommandError
	if errors.As(err, &ce) {
		return f.Fail(ExitFailure, ErrCodeEngine, fmt.Sprintf("task engine exited with code %d", ce.Code), err)
	} else if err != nil {
		return f.Fail(ExitFailure, ErrCodeEngine, "failed to run task engine", err)
	}

	return f.Success(TaskResult{User: username, Stdout: stdout, Stderr: stderr})
}
