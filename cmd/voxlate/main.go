// Package main is the entry point for the voxlate CLI.
//
// Usage:
//
//	voxlate [flags] <command> [args]
//
// Commands:
//
//	serve    - Run the translation web server
//	talk     - Run a realtime voice session from the terminal
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/voxlate/voxlate/cmd/voxlate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
