// Package main is the entry point for the Quill CLI.
package main

import (
	"os"

	"github.com/quillwallet/quill/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
