package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bypassd/internal/events"
)

const maxLineSize = 1024 * 1024

// ParseOptions holds flags for the parse command.
type ParseOptions struct {
	*RootOptions
	All bool
}

// ParsedLine is one classified input line.
type ParsedLine struct {
	Line  int          `json:"line"`
	Kind  events.Kind  `json:"kind,omitempty"`
	Event events.Event `json:"event,omitempty"`
	Raw   string       `json:"raw"`
}

// ParseResult is the output of the parse command.
type ParseResult struct {
	Lines        []ParsedLine   `json:"lines"`
	Counts       map[string]int `json:"counts"`
	Total        int            `json:"total"`
	Unrecognized int            `json:"unrecognized"`

	all bool
}

// Text prints one line per event and a per-kind summary.
func (r ParseResult) Text() string {
	var b strings.Builder
	for _, l := range r.Lines {
		if l.Event == nil {
			if r.all {
				fmt.Fprintf(&b, "%6d  %-22s %s\n", l.Line, "-", l.Raw)
			}
			continue
		}
		fmt.Fprintf(&b, "%6d  %-22s %s\n", l.Line, l.Kind, l.Event)
	}
	fmt.Fprintf(&b, "%d lines, %d recognized, %d unrecognized\n",
		r.Total, r.Total-r.Unrecognized, r.Unrecognized)
	for _, k := range events.Kinds() {
		if n := r.Counts[k.String()]; n > 0 {
			fmt.Fprintf(&b, "  %-22s %d\n", k, n)
		}
	}
	return b.String()
}

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Classify captured engine output",
		Long: `Classify engine log lines offline and print the recognized events.
Reads standard input when no file (or "-") is given. Does not touch the
learning database.

Examples:
  bypassd parse engine-debug.log
  journalctl -u nfqws2 -o cat | bypassd parse --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "also print unrecognized lines")

	return cmd
}

func runParse(opts *ParseOptions, cmd *cobra.Command, args []string) error {
	in, closeIn, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer closeIn()

	res := ParseResult{Lines: []ParsedLine{}, Counts: map[string]int{}, all: opts.All}
	err = scanEngineLines(in, func(n int, raw string, ev events.Event) {
		res.Total++
		pl := ParsedLine{Line: n, Raw: raw, Event: ev}
		if ev == nil {
			res.Unrecognized++
		} else {
			pl.Kind = ev.Kind()
			res.Counts[ev.Kind().String()]++
		}
		res.Lines = append(res.Lines, pl)
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}
	return opts.formatter(cmd).Success(res)
}

// openInput opens args[0], or standard input when it is absent or "-".
func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open input", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// scanEngineLines calls fn for every line of r with its 1-based number and
// parsed event (nil when unrecognized).
func scanEngineLines(r io.Reader, fn func(n int, raw string, ev events.Event)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	n := 0
	for sc.Scan() {
		n++
		raw := strings.TrimRight(sc.Text(), "\r")
		ev, _ := events.Parse(raw)
		fn(n, raw, ev)
	}
	return sc.Err()
}
