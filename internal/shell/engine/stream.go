package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// streamMessage is the subset of the daemon's progress stream caravel reads.
// Build and push report failure inside this stream, not via HTTP status.
type streamMessage struct {
	Stream      string `json:"stream,omitempty"`
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorDetail struct {
		Message string `json:"message,omitempty"`
	} `json:"errorDetail,omitempty"`
}

// scanStream consumes a progress stream to completion, logging step output
// at debug level and returning the first error the daemon reports.
func scanStream(r io.Reader, logger *slog.Logger) error {
	dec := json.NewDecoder(r)
	for {
		var msg streamMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode engine stream: %w", err)
		}

		if msg.Error != "" {
			if msg.ErrorDetail.Message != "" {
				return errors.New(msg.ErrorDetail.Message)
			}
			return errors.New(msg.Error)
		}

		if line := strings.TrimSpace(msg.Stream); line != "" {
			logger.Debug("engine output", "line", line)
		}
	}
}
