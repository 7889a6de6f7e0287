package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bypassd/internal/config"
	"github.com/roach88/bypassd/internal/store"
)

// AutolockOptions holds flags for the autolock command.
type AutolockOptions struct {
	*RootOptions
	Threshold int
}

// AutolockResult is the output of the autolock command.
type AutolockResult struct {
	Threshold int        `json:"threshold"`
	Locked    []LockView `json:"locked"`
}

// Text lists the new locks.
func (r AutolockResult) Text() string {
	if len(r.Locked) == 0 {
		return fmt.Sprintf("No unlocked domain has a strategy with at least %d successes.\n", r.Threshold)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Locked %d domain(s) (threshold %d):\n", len(r.Locked), r.Threshold)
	for _, l := range r.Locked {
		fmt.Fprintf(&b, "  %s -> strategy=%d [%s]\n", l.Domain, l.Strategy, l.Protocol)
	}
	return b.String()
}

// NewAutolockCommand creates the autolock command.
func NewAutolockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AutolockOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "autolock",
		Short: "Lock domains to their best proven strategy",
		Long: `Lock every domain that has no lock yet to the strategy with the most
successes, provided that count reached the threshold. Failures are not
weighed. Locks are written as TLS locks and persisted.

Examples:
  bypassd autolock
  bypassd autolock --threshold 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutolock(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Threshold, "threshold", 0, "minimum successes (default from config)")

	return cmd
}

func runAutolock(opts *AutolockOptions, cmd *cobra.Command) error {
	if opts.Threshold < 0 {
		return NewExitError(ExitCommandError, "threshold must be positive")
	}
	return withStore(opts.RootOptions, func(cfg *config.Config, st *store.Store) error {
		ctx := commandContext(cmd)
		ls, err := loadLearning(ctx, st)
		if err != nil {
			return err
		}

		threshold := opts.Threshold
		if threshold == 0 {
			threshold = cfg.Learning.AutoLockThreshold
		}
		locked := ls.AutoLockFromHistory(threshold)
		if err := ls.Persist(ctx); err != nil {
			return WrapExitError(ExitFailure, "failed to persist locks", err)
		}
		return opts.formatter(cmd).Success(AutolockResult{
			Threshold: threshold,
			Locked:    lockViews(locked),
		})
	})
}
