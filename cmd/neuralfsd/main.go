// Package main provides the entry point for the neuralfsd engine.
package main

import (
	"os"

	"github.com/aimerfeng/neuralfs/cmd/neuralfsd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
