// Command offstore inspects and edits offline form storage.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/offstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
