package main

import (
	"fmt"
	"os"

	"github.com/pfemlab/pfemrun/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pfemrun:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
