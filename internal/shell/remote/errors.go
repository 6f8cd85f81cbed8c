package remote

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Connection errors
	ErrConnectionFailed = errors.New("ssh connection failed")
	ErrTimeout          = errors.New("remote operation timed out")

	// Key errors
	ErrKeyUnreadable = errors.New("ssh private key is unreadable")
	ErrKeyInvalid    = errors.New("ssh private key is invalid")
)

// CommandError wraps a remote command that ran but exited non-zero. The
// exit code is preserved so callers can tell "file absent" apart from
// "transport broken".
type CommandError struct {
	Cmd      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("remote command %q exited %d", e.Cmd, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(cmd string, exitCode int, stderr string, err error) *CommandError {
	return &CommandError{
		Cmd:      cmd,
		ExitCode: exitCode,
		Stderr:   stderr,
		Err:      err,
	}
}

// AsCommandError unwraps err to a CommandError if one is in the chain.
func AsCommandError(err error) (*CommandError, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr, true
	}
	return nil, false
}

// lastLine keeps error messages single-line when stderr carried a stack of
// output.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
