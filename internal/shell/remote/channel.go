package remote

import (
	"context"
	"strings"
)

// Output carries what a finished remote command produced.
type Output struct {
	Stdout string
	Stderr string
}

// Lines splits stdout into trimmed non-empty lines, the shape directory
// listings come back in.
func (o Output) Lines() []string {
	var lines []string
	for _, line := range strings.Split(o.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Channel runs commands on the deployment host. Implementations serve one
// orchestrator invocation at a time; sequential use only.
type Channel interface {
	// Ping verifies the host is reachable and accepts our key.
	Ping(ctx context.Context) error

	// Run executes a command and waits for it to finish. A non-zero exit
	// returns the captured Output together with a *CommandError.
	Run(ctx context.Context, cmd Command) (Output, error)

	// Upload writes content to remotePath, creating parent directories.
	// The write is staged to a temporary file and renamed into place, so
	// the destination is never observed half-written.
	Upload(ctx context.Context, content []byte, remotePath string) error

	// Close releases the underlying connection.
	Close() error
}
