// Package main provides the purecast CLI tool.
//
// Usage:
//
//	purecast [flags] <command> [args]
//
// Commands:
//
//	serve       - Run the broadcast server
//	streams     - List active streams or show one broadcaster's status
//	stop        - Stop a live stream
//	recordings  - Manage recordings (list, get, rm, download)
//	config      - Configuration management
//	version     - Show version information
//
// Configuration:
//
//	The CLI stores server contexts in ~/.purecast/config.yaml.
//	Use 'purecast config' commands to manage them.
package main

import (
	"fmt"
	"os"

	"github.com/purecast-io/purecast/cmd/purecast/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
