// Package main is the entry point for the docflow CLI.
// The CLI is the developer terminal tool for interacting with the docflow API.
package main

import (
	"os"

	"docflow/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
