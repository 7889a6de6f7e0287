// Command bypassd runs a DPI bypass engine and learns per-domain strategies
// from its output.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bypassd/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
