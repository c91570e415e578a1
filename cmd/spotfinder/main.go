// Package main is the entry point for the spotfinder CLI.
package main

import (
	"os"

	"github.com/wigtn/wigtn-spot-finder/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
