package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bypassd/internal/config"
	"github.com/roach88/bypassd/internal/store"
)

// ClearResult is the output of the clear command.
type ClearResult struct {
	Locks   int `json:"locks"`
	History int `json:"history"`
}

// Text summarizes what was removed.
func (r ClearResult) Text() string {
	return fmt.Sprintf("Cleared %d lock(s) and %d history record(s).\n", r.Locks, r.History)
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget all locks and strategy history",
		Long: `Delete every lock and all strategy history from the learning database.
The whitelist is kept.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, func(_ *config.Config, st *store.Store) error {
				ctx := commandContext(cmd)
				ls, err := loadLearning(ctx, st)
				if err != nil {
					return err
				}
				res := ClearResult{Locks: len(ls.Locks()), History: len(ls.HistoryRecords())}
				if err := ls.ClearAll(ctx); err != nil {
					return WrapExitError(ExitFailure, "failed to clear learning data", err)
				}
				return rootOpts.formatter(cmd).Success(res)
			})
		},
	}
}
