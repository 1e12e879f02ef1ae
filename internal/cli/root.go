// Package cli wires the flo subcommands to the internal packages.
package cli

import (
	"context"
	"os/signal"
	"syscall"
)

// Run is the main CLI entry point. It parses args and dispatches to the
// appropriate subcommand, returning a process exit code.
func Run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(args) == 0 {
		return runServe(ctx, nil)
	}

	switch args[0] {
	case "serve":
		return runServe(ctx, args[1:])
	case "client":
		return runClient(ctx, args[1:])
	case "config":
		return runConfig(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "version", "--version":
		printVersion()
		return 0
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		return runServe(ctx, args)
	}
}
