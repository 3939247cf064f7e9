// Package main is the giztalk CLI.
//
// Usage:
//
//	giztalk [flags] <command> [args]
//
// Commands:
//
//	serve     - Run the HTTP API
//	call      - Hold a realtime voice conversation from the terminal
//	styles    - List conversation styles
//	migrate   - Apply or inspect database migrations
//	config    - Show and edit the configuration file
//	version   - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/giztalk/cmd/giztalk/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
