// Package main provides the caravel binary, a deployment pipeline for
// single-host compose stacks. A release is built and pushed from the
// operator's machine, then rolled out to a remote host over SSH with
// health verification and backup-based rollback.
//
// Usage:
//
//	caravel <command> [environment] [flags]
//
// The environment defaults to dev when omitted.
//
// Commands:
//
//	build [env]     - Build the application image for an environment
//	push [env]      - Push the built image to the registry
//	deploy [env]    - Deploy the pushed image to the environment's host
//	rollback [env]  - Restore the previous manifest and restart the stack
//	status [env]    - Show the running stack and its health
//	history [env]   - List manifest backups on the host
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/caravel-sh/caravel/internal/core/domain"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		// Run failures were already reported by their handler and carry
		// their own exit code.
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintf(os.Stderr, "caravel: %v\n", err)
		return domain.ExitFailure
	}
	return domain.ExitSuccess
}
