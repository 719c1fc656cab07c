package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/taskstore/internal/checkpoint"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// HistoryResult lists a store's checkpoints.
type HistoryResult struct {
	User    string              `json:"user"`
	Commits []checkpoint.Commit `json:"commits"`
}

func (r HistoryResult) String() string {
	if len(r.Commits) == 0 {
		return fmt.Sprintf("No checkpoints for %s", r.User)
	}
	rows := make([][]string, 0, len(r.Commits))
	for _, c := range r.Commits {
		hash := c.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		rows = append(rows, []string{hash, humanize.Time(c.When), c.Subject})
	}
	return renderTable([]string{"Commit", "When", "Subject"}, rows)
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <user>",
		Short: "Show a user's checkpoint history",
		Long: `Show the checkpoints taken of a store's directory, newest first.

Example:
  taskstore history alice --limit 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of checkpoints (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command, username string) error {
	f := newFormatter(opts.RootOptions, cmd)
	e, err := openEnv(opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := commandContext(cmd)
	ts, err := e.lookup(ctx, f, username)
	if err != nil {
		return err
	}

	commits, err := ts.History(ctx, opts.Limit)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, "failed to read checkpoint history", err)
	}
	if commits == nil {
		commits = []checkpoint.Commit{}
	}
	return f.Success(HistoryResult{User: username, Commits: commits})
}
