package cli

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/taskstore/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Limit int
}

// LogResult is a store's activity log.
type LogResult struct {
	User    string        `json:"user"`
	Entries []store.Entry `json:"entries"`
}

func (r LogResult) String() string {
	if len(r.Entries) == 0 {
		return fmt.Sprintf("No activity for %s", r.User)
	}
	rows := make([][]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		severity := "info"
		if e.Error {
			severity = "error"
		}
		rows = append(rows, []string{
			humanize.Time(e.LastSeen),
			severity,
			strconv.Itoa(e.Count),
			e.Message,
		})
	}
	return renderTable([]string{"Last seen", "Severity", "Count", "Message"}, rows)
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <user>",
		Short: "Show a user's activity log",
		Long: `Show a store's activity log, most recent first. Repeated messages are
shown once with the number of times they occurred.

Example:
  taskstore log alice --limit 5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of entries (0 for all)")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command, username string) error {
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

	entries, err := ts.ActivityLog(ctx, opts.Limit)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeDatabase, "failed to read activity log", err)
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	return f.Success(LogResult{User: username, Entries: entries})
}
