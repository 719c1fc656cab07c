package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/taskstore/internal/metadata"
)

// ProvisionResult is the outcome of the provision command.
type ProvisionResult struct {
	User        string `json:"user"`
	Path        string `json:"path"`
	Configured  bool   `json:"configured"`
	Credentials string `json:"credentials,omitempty"`
}

func (r ProvisionResult) String() string {
	if !r.Configured {
		return fmt.Sprintf("Store for %s at %s is not configured (see `taskstore log %s`)", r.User, r.Path, r.User)
	}
	return fmt.Sprintf("Store for %s at %s is configured as %s", r.User, r.Path, r.Credentials)
}

// NewProvisionCommand creates the provision command.
func NewProvisionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision <user>",
		Short: "Create and configure a user's task store",
		Long: `Create the user's task store if it does not exist yet and, unless it is
already configured, provision sync server credentials for it.

With debug set in the settings file, provisioning failures are recorded in
the store's activity log instead of failing the command.

Example:
  taskstore provision alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runProvision(opts *RootOptions, cmd *cobra.Command, username string) error {
	f := newFormatter(opts, cmd)
	e, err := openEnv(opts, f)
	if err != nil {
		return err
	}
	defer e.Close()

	ts, err := e.manager.Provision(commandContext(cmd), username)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeProvision, fmt.Sprintf("failed to provision %s", username), err)
	}

	return f.Success(ProvisionResult{
		User:        username,
		Path:        ts.Dir(),
		Configured:  ts.Configured(),
		Credentials: ts.Metadata().GetString(metadata.KeyCredentials, ""),
	})
}
