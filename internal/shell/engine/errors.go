// Package engine builds and pushes images through the local Docker daemon.
// It is the only part of caravel that talks to a local daemon; everything
// after push happens on the deployment host.
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrEngineUnavailable = errors.New("docker engine unavailable")
	ErrBuildFailed       = errors.New("image build failed")
	ErrPushFailed        = errors.New("image push failed")
	ErrImageNotFound     = errors.New("image not found")
	ErrContextUnreadable = errors.New("build context unreadable")
)

// EngineError wraps errors with the operation and image reference involved.
type EngineError struct {
	Op      string // Operation that failed (build, push, inspect)
	Ref     string // Image reference if applicable
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Ref, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError.
func NewEngineError(op, ref, message string, err error) *EngineError {
	return &EngineError{
		Op:      op,
		Ref:     ref,
		Message: message,
		Err:     err,
	}
}
