package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bypassd/internal/config"
	"github.com/roach88/bypassd/internal/store"
	"github.com/roach88/bypassd/internal/whitelist"
)

// WhitelistResult is the output of whitelist list.
type WhitelistResult struct {
	Default []string `json:"default"`
	User    []string `json:"user"`
}

// Text lists built-in and user domains.
func (r WhitelistResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Built-in domains (%d, cannot be removed):\n", len(r.Default))
	for _, d := range r.Default {
		fmt.Fprintf(&b, "  %s\n", d)
	}
	if len(r.User) == 0 {
		b.WriteString("No user domains.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "User domains (%d):\n", len(r.User))
	for _, d := range r.User {
		fmt.Fprintf(&b, "  %s\n", d)
	}
	return b.String()
}

// WhitelistChange is the output of whitelist add and remove.
type WhitelistChange struct {
	Action    string   `json:"action"`
	Changed   []string `json:"changed"`
	Unchanged []string `json:"unchanged"`
}

// Text reports which domains changed.
func (c WhitelistChange) Text() string {
	var b strings.Builder
	for _, d := range c.Changed {
		fmt.Fprintf(&b, "%s %s\n", c.Action, d)
	}
	for _, d := range c.Unchanged {
		fmt.Fprintf(&b, "unchanged %s\n", d)
	}
	return b.String()
}

// NewWhitelistCommand creates the whitelist command group.
func NewWhitelistCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage domains the engine must never touch",
		Long: `Manage the exclusion list passed to the engine. Built-in domains are
always excluded and cannot be removed. Changes apply at the next start.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List excluded domains",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWhitelist(rootOpts, cmd, func(r *whitelist.Registry) error {
				return rootOpts.formatter(cmd).Success(WhitelistResult{
					Default: whitelist.DefaultDomains(),
					User:    r.UserDomains(),
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <domain>...",
		Short: "Add user domains",
		Example: `  bypassd whitelist add example.com
  bypassd whitelist add bank.example intranet.local`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWhitelist(rootOpts, cmd, func(r *whitelist.Registry) error {
				return changeWhitelist(cmd, rootOpts, "added", args, r.Add)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "remove <domain>...",
		Short:         "Remove user domains",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWhitelist(rootOpts, cmd, func(r *whitelist.Registry) error {
				return changeWhitelist(cmd, rootOpts, "removed", args, r.Remove)
			})
		},
	})

	return cmd
}

func withWhitelist(opts *RootOptions, cmd *cobra.Command, fn func(*whitelist.Registry) error) error {
	return withStore(opts, func(_ *config.Config, st *store.Store) error {
		r := whitelist.New(st)
		if err := r.Load(commandContext(cmd)); err != nil {
			return WrapExitError(ExitCommandError, "failed to load whitelist", err)
		}
		return fn(r)
	})
}

func changeWhitelist(
	cmd *cobra.Command,
	opts *RootOptions,
	action string,
	domains []string,
	apply func(ctx context.Context, domain string) (bool, error),
) error {
	ctx := commandContext(cmd)
	res := WhitelistChange{Action: action, Changed: []string{}, Unchanged: []string{}}
	for _, d := range domains {
		changed, err := apply(ctx, d)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to update whitelist for %s", d), err)
		}
		if changed {
			res.Changed = append(res.Changed, d)
		} else {
			res.Unchanged = append(res.Unchanged, d)
		}
	}
	return opts.formatter(cmd).Success(res)
}
