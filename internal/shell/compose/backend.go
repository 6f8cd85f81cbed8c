// Package compose drives the compose implementation on the deployment host
// through a remote channel. It speaks both the docker compose plugin and
// the standalone docker-compose binary, preferring the plugin.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/caravel-sh/caravel/internal/shell/remote"
)

var ErrNoBackend = errors.New("no compose backend found on host")

// DefaultLogTail is how many log lines per service diagnostics fetch.
const DefaultLogTail = 50

// Backend runs compose commands against one manifest on the remote host.
type Backend struct {
	channel      remote.Channel
	manifestPath string
	logger       *slog.Logger

	// base is the resolved compose invocation, ["docker", "compose"] or
	// ["docker-compose"].
	base []string
}

// NewBackend creates a backend for the manifest at manifestPath. Until
// Detect runs, the plugin form is assumed.
func NewBackend(channel remote.Channel, manifestPath string, logger *slog.Logger) *Backend {
	return &Backend{
		channel:      channel,
		manifestPath: manifestPath,
		logger:       logger.With("component", "compose"),
		base:         []string{"docker", "compose"},
	}
}

// Detect probes which compose implementation the host has and pins the
// backend to it. Transport failures propagate unchanged; only "command ran
// and was not found" counts as a missing backend.
func (b *Backend) Detect(ctx context.Context) error {
	if _, err := b.channel.Run(ctx, remote.Cmd("docker", "compose", "version")); err == nil {
		b.base = []string{"docker", "compose"}
		b.logger.Debug("compose backend detected", "backend", "docker compose plugin")
		return nil
	} else if _, ok := remote.AsCommandError(err); !ok {
		return err
	}

	if _, err := b.channel.Run(ctx, remote.Cmd("docker-compose", "version")); err == nil {
		b.base = []string{"docker-compose"}
		b.logger.Debug("compose backend detected", "backend", "docker-compose standalone")
		return nil
	} else if _, ok := remote.AsCommandError(err); !ok {
		return err
	}

	return ErrNoBackend
}

// cmd builds a compose command bound to the manifest.
func (b *Backend) cmd(args ...string) remote.Command {
	full := append([]string{}, b.base[1:]...)
	full = append(full, "-f", b.manifestPath)
	full = append(full, args...)
	return remote.Cmd(b.base[0], full...)
}

// Pull fetches the images the manifest references.
func (b *Backend) Pull(ctx context.Context) error {
	if _, err := b.channel.Run(ctx, b.cmd("pull")); err != nil {
		return fmt.Errorf("compose pull: %w", err)
	}
	return nil
}

// Stop takes the stack down, removing containers that no longer appear in
// the manifest.
func (b *Backend) Stop(ctx context.Context) error {
	if _, err := b.channel.Run(ctx, b.cmd("down", "--remove-orphans")); err != nil {
		return fmt.Errorf("compose down: %w", err)
	}
	return nil
}

// Start brings the stack up detached.
func (b *Backend) Start(ctx context.Context) error {
	if _, err := b.channel.Run(ctx, b.cmd("up", "-d")); err != nil {
		return fmt.Errorf("compose up: %w", err)
	}
	return nil
}

// Services returns the ps table for the stack.
func (b *Backend) Services(ctx context.Context) (string, error) {
	out, err := b.channel.Run(ctx, b.cmd("ps"))
	if err != nil {
		return "", fmt.Errorf("compose ps: %w", err)
	}
	return out.Stdout, nil
}

// Logs returns the last tail lines of every service's logs.
func (b *Backend) Logs(ctx context.Context, tail int) (string, error) {
	if tail <= 0 {
		tail = DefaultLogTail
	}
	out, err := b.channel.Run(ctx, b.cmd("logs", "--tail", strconv.Itoa(tail), "--no-color"))
	if err != nil {
		return "", fmt.Errorf("compose logs: %w", err)
	}
	return out.Stdout, nil
}
