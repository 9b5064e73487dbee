// Command fulfil runs the fulfillment automation service and its
// operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/fulfil/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
