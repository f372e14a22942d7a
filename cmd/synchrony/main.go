// Command synchrony processes transaction batches in parallel against a
// durable ledger.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/synchrony/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
