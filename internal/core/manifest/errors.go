// Package manifest contains pure functions for rendering the deployment
// manifest template and validating the result before it is sent anywhere.
// All functions take strings in and give strings or errors out; no I/O.
package manifest

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Template errors
	ErrEmptyTemplate      = errors.New("manifest template is empty")
	ErrMissingPlaceholder = errors.New("manifest template has no image placeholder")
	ErrUnresolvedToken    = errors.New("manifest has unresolved placeholder tokens")

	// Validation errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")
	ErrNoServices  = errors.New("manifest must define at least one service")
	ErrNotCompose  = errors.New("manifest is not a valid compose file")
)

// RenderError wraps errors with context about where rendering or validation
// failed.
type RenderError struct {
	Token   string // e.g., "{{IMAGE}}"
	Message string
	Err     error
}

func (e *RenderError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s: %s", e.Token, e.Message)
	}
	return e.Message
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// NewRenderError creates a new RenderError.
func NewRenderError(token, message string, err error) *RenderError {
	return &RenderError{
		Token:   token,
		Message: message,
		Err:     err,
	}
}
