// Package main provides the entry point for the narrowdown CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/narrowdown/cmd/narrowdown/commands"
	"github.com/Sumatoshi-tech/narrowdown/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
