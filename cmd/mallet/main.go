// Command mallet is an intercepting TCP proxy.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/mallet/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
