// Package main is the entry point for batchctl.
package main

import (
	"os"

	"batchplane/cmd/batchctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
