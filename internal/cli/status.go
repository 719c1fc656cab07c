package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/taskstore/internal/taskrc"
)

// StatusResult describes one store.
type StatusResult struct {
	User            string                `json:"user"`
	Path            string                `json:"path"`
	Configured      bool                  `json:"configured"`
	Version         int                   `json:"version"`
	UsingLocalTaskd bool                  `json:"using_local_taskd"`
	Certificates    map[string]string     `json:"certificates"`
	UDAs            map[string]taskrc.UDA `json:"udas,omitempty"`
}

func (r StatusResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "User:        %s\n", r.User)
	fmt.Fprintf(&b, "Path:        %s\n", r.Path)
	fmt.Fprintf(&b, "Configured:  %t\n", r.Configured)
	fmt.Fprintf(&b, "Version:     %d\n", r.Version)
	fmt.Fprintf(&b, "Local taskd: %t", r.UsingLocalTaskd)

	for _, k := range sortedKeys(r.Certificates) {
		fmt.Fprintf(&b, "\n%s: %s", k, r.Certificates[k])
	}

	names := make([]string, 0, len(r.UDAs))
	for name := range r.UDAs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		uda := r.UDAs[name]
		fmt.Fprintf(&b, "\nuda %s (%s) %s", name, uda.Type, uda.Label)
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <user>",
		Short: "Show a user's task store",
		Long: `Show where a user's store lives, whether it is configured, its metadata
version, the credentials its config points at and its user-defined
attributes. The store is not created if it does not exist.

Example:
  taskstore status alice --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command, username string) error {
	f := newFormatter(opts, cmd)
	e, err := openEnv(opts, f)
	if err != nil {
		return err
	}
	defer e.Close()

	ts, err := e.lookup(commandContext(cmd), f, username)
	if err != nil {
		return err
	}

	return f.Success(StatusResult{
		User:            username,
		Path:            ts.Dir(),
		Configured:      ts.Configured(),
		Version:         ts.Version(),
		UsingLocalTaskd: ts.UsingLocalTaskd(),
		Certificates:    ts.CertificateStatus(),
		UDAs:            ts.TaskRc().UDAs(),
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
