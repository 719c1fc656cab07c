package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/taskstore/internal/extras"
)

// ExtrasOptions holds flags for the extras command.
type ExtrasOptions struct {
	*RootOptions
	File string
}

// ExtrasResult reports which overrides were applied.
type ExtrasResult struct {
	User    string                      `json:"user"`
	Applied map[string]string           `json:"applied"`
	Errored map[string]extras.Rejection `json:"errored"`
}

func (r ExtrasResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Applied %d override(s) for %s", len(r.Applied), r.User)

	keys := make([]string, 0, len(r.Errored))
	for k := range r.Errored {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  rejected %s: %s", k, r.Errored[k].Reason)
	}
	return b.String()
}

// NewExtrasCommand creates the extras command.
func NewExtrasCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExtrasOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "extras <user>",
		Short: "Replace a user's config overrides",
		Long: `Replace the raw config overrides of a user's store and apply them.

Overrides are read from --file, or from stdin when no file is given. Lines
are key=value pairs. Only urgency coefficients and user-defined attribute
declarations are accepted; anything else is rejected and reported.

Examples:
  taskstore extras alice --file overrides.txt
  echo 'urgency.age.max=30' | taskstore extras alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtras(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read overrides from this file instead of stdin")

	return cmd
}

func runExtras(opts *ExtrasOptions, cmd *cobra.Command, username string) error {
	f := newFormatter(opts.RootOptions, cmd)

	var (
		text []byte
		err  error
	)
	if opts.File != "" {
		text, err = os.ReadFile(opts.File)
	} else {
		text, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "failed to read overrides", err)
	}

	e, err := openEnv(opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := commandContext(cmd)
	ts, err := e.manager.GetOrCreateStore(ctx, username)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to open task store", err)
	}

	result, err := ts.SetExtras(ctx, string(text))
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("failed to update overrides for %s", username), err)
	}

	return f.Success(ExtrasResult{
		User:    username,
		Applied: result.Applied,
		Errored: result.Errored,
	})
}
