// Package main provides the entry point for the aarag CLI.
package main

import (
	"os"

	"github.com/continue-ai-company/aa-rag/cmd/aarag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
