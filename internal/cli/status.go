package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/bypassd/internal/config"
	"github.com/roach88/bypassd/internal/model"
	"github.com/roach88/bypassd/internal/store"
)

// LockView is one lock in command output.
type LockView struct {
	Domain   string         `json:"domain"`
	Protocol model.Protocol `json:"protocol"`
	Strategy int            `json:"strategy"`
}

// HistoryView is one history record in command output.
type HistoryView struct {
	Domain    string `json:"domain"`
	Strategy  int    `json:"strategy"`
	Successes int    `json:"successes"`
	Failures  int    `json:"failures"`
	Rate      int    `json:"rate"`
}

func lockViews(locks []model.LockEntry) []LockView {
	out := make([]LockView, 0, len(locks))
	for _, l := range locks {
		out = append(out, LockView{Domain: l.Domain, Protocol: l.Protocol, Strategy: l.Strategy})
	}
	return out
}

func historyViews(records []model.HistoryRecord) []HistoryView {
	out := make([]HistoryView, 0, len(records))
	for _, r := range records {
		out = append(out, HistoryView{
			Domain:    r.Domain,
			Strategy:  r.Strategy,
			Successes: r.Successes,
			Failures:  r.Failures,
			Rate:      model.ComputeRate(r.Counters),
		})
	}
	return out
}

// StatusResult is the output of the status command.
type StatusResult struct {
	Locks   []LockView    `json:"locks"`
	History []HistoryView `json:"history"`
}

// Text renders the result as two aligned tables.
func (r StatusResult) Text() string {
	var b strings.Builder
	if len(r.Locks) == 0 {
		b.WriteString("No locked domains.\n")
	} else {
		fmt.Fprintf(&b, "Locked domains (%d):\n", len(r.Locks))
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		for _, l := range r.Locks {
			fmt.Fprintf(tw, "  %s\t%s\tstrategy=%d\n", l.Domain, l.Protocol, l.Strategy)
		}
		tw.Flush()
	}

	if len(r.History) == 0 {
		b.WriteString("No strategy history.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Strategy history (%d):\n", len(r.History))
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, h := range r.History {
		fmt.Fprintf(tw, "  %s\tstrategy=%d\tsuccesses=%d\tfailures=%d\trate=%d%%\n",
			h.Domain, h.Strategy, h.Successes, h.Failures, h.Rate)
	}
	tw.Flush()
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show learned locks and strategy history",
		Long: `Show every locked domain and the per-strategy success history with
success rates, as persisted in the learning database.

Examples:
  bypassd status
  bypassd status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, func(_ *config.Config, st *store.Store) error {
				ls, err := loadLearning(commandContext(cmd), st)
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(StatusResult{
					Locks:   lockViews(ls.Locks()),
					History: historyViews(ls.HistoryRecords()),
				})
			})
		},
	}
}
