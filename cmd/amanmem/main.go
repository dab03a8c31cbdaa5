// Package main provides the entry point for the amanmem CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanmem/cmd/amanmem/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
