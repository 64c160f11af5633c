// Package main provides the entry point for the compass CLI.
package main

import (
	"os"

	"github.com/filecompass/compass/cmd/compass/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
