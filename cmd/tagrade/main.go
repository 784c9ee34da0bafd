package main

import (
	"os"

	"github.com/tagrade/tagrade/internal/cmd"
)

var revision string

func main() {
	cmd.SetVersion(revision)
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.PrintError(os.Stderr, err))
	}
}
