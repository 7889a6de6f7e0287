package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bypassd/internal/config"
	"github.com/roach88/bypassd/internal/store"
	"github.com/roach88/bypassd/internal/supervisor"
)

// PrepareResult is the output of the prepare command.
type PrepareResult struct {
	*supervisor.PrepareReport
}

// Text describes the generated artifacts.
func (r PrepareResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Engine binary:    %s\n", r.Binary)
	fmt.Fprintf(&b, "Engine config:    %s\n", r.ConfigPath)
	fmt.Fprintf(&b, "Exclusion file:   %s (%d domains)\n", r.ExclusionPath, r.ExcludedDomains)
	fmt.Fprintf(&b, "TLS strategies:   %d\n", r.TLSStrategies)
	fmt.Fprintf(&b, "HTTP strategies:  %d\n", r.HTTPStrategies)
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	return b.String()
}

// NewPrepareCommand creates the prepare command.
func NewPrepareCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Build engine artifacts without starting it",
		Long: `Verify the engine binary and support files, number the strategy
templates, and write the engine config and exclusion file into the work dir.

Exit codes:
  0 - Artifacts written
  2 - Required artifacts missing or config invalid`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, func(cfg *config.Config, st *store.Store) error {
				sup := supervisor.New(cfg, st, supervisor.WithLogger(slog.Default()))
				report, err := sup.Prepare(commandContext(cmd))
				if err != nil {
					return prepareError(rootOpts.formatter(cmd), err)
				}
				return rootOpts.formatter(cmd).Success(PrepareResult{report})
			})
		},
	}
}

// prepareError reports a Prepare failure and maps it to an exit code.
// Missing artifacts are listed one by one.
func prepareError(out *OutputFormatter, err error) error {
	var ce *supervisor.ConfigError
	if errors.As(err, &ce) {
		if out.Format == "json" {
			_ = out.Error(ErrCodeMissing, "required engine artifacts missing", ce.Missing)
		} else {
			w := out.GetErrWriter()
			fmt.Fprintln(w, "Missing required artifacts:")
			for _, m := range ce.Missing {
				fmt.Fprintf(w, "  %s\n", m)
			}
		}
		return WrapExitError(ExitCommandError, "prepare failed", err)
	}
	return WrapExitError(ExitFailure, "prepare failed", err)
}
