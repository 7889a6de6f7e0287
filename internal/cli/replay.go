package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bypassd/internal/config"
	"github.com/roach88/bypassd/internal/events"
	"github.com/roach88/bypassd/internal/store"
)

// ReplayResult is the output of the replay command.
type ReplayResult struct {
	File           string `json:"file"`
	Lines          int    `json:"lines"`
	Events         int    `json:"events"`
	Unrecognized   int    `json:"unrecognized"`
	LockChanges    int    `json:"lock_changes"`
	Outcomes       int    `json:"outcomes"`
	Locks          int    `json:"locks"`
	HistoryRecords int    `json:"history_records"`
}

// Text summarizes the import.
func (r ReplayResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Replayed %s: %d lines, %d events (%d unrecognized lines)\n",
		r.File, r.Lines, r.Events, r.Unrecognized)
	fmt.Fprintf(&b, "  lock changes: %d\n", r.LockChanges)
	fmt.Fprintf(&b, "  outcomes:     %d\n", r.Outcomes)
	fmt.Fprintf(&b, "Store now holds %d lock(s) and %d history record(s).\n", r.Locks, r.HistoryRecords)
	return b.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <file>",
		Short: "Import a captured engine log into the learning database",
		Long: `Feed a captured engine log through the same parser and learning rules
the live reader uses, then persist the result. Use "-" to read standard
input. Do not run this against a database a live engine is writing to.

Examples:
  bypassd replay engine-debug-0192.log
  bypassd replay old.log --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd, args)
		},
	}
}

func runReplay(opts *RootOptions, cmd *cobra.Command, args []string) error {
	in, closeIn, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer closeIn()

	return withStore(opts, func(_ *config.Config, st *store.Store) error {
		ctx := commandContext(cmd)
		ls, err := loadLearning(ctx, st)
		if err != nil {
			return err
		}

		res := ReplayResult{File: args[0]}
		err = scanEngineLines(in, func(_ int, _ string, ev events.Event) {
			res.Lines++
			if ev == nil {
				res.Unrecognized++
				return
			}
			res.Events++
			ch := ls.Apply(ev)
			if ch.LockChanged {
				res.LockChanges++
			}
			if ch.Outcome {
				res.Outcomes++
			}
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read input", err)
		}

		if err := ls.Persist(ctx); err != nil {
			return WrapExitError(ExitFailure, "failed to persist replayed state", err)
		}
		res.Locks = len(ls.Locks())
		res.HistoryRecords = len(ls.HistoryRecords())
		return opts.formatter(cmd).Success(res)
	})
}
