package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/caravel-sh/caravel/internal/core/domain"
)

// Client wraps the Docker SDK for the build and push operations.
type Client struct {
	api    *client.Client
	logger *slog.Logger
}

// NewClient connects to the local Docker daemon using the standard DOCKER_*
// environment, negotiating the API version with whatever daemon answers.
func NewClient(logger *slog.Logger) (*Client, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return &Client{
		api:    api,
		logger: logger.With("component", "engine"),
	}, nil
}

// Ping verifies the daemon is reachable before any build work starts.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

// Close releases the API connection.
func (c *Client) Close() error {
	return c.api.Close()
}

// =============================================================================
// Build
// =============================================================================

// Build tars contextDir, streams it to the daemon, and tags the result.
// Errors reported inside the build stream are surfaced; a build is only
// successful when the stream finishes clean.
func (c *Client) Build(ctx context.Context, contextDir, dockerfile string, ref domain.ImageRef) error {
	c.logger.Info("building image",
		"ref", ref.String(),
		"context", contextDir,
		"dockerfile", dockerfile,
	)

	buildContext, err := tarBuildContext(contextDir)
	if err != nil {
		return NewEngineError("build", ref.String(), err.Error(), err)
	}
	defer buildContext.Close()

	resp, err := c.api.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:       []string{ref.String()},
		Dockerfile: dockerfile,
		Remove:     true,
	})
	if err != nil {
		return NewEngineError("build", ref.String(), err.Error(), ErrBuildFailed)
	}
	defer resp.Body.Close()

	if err := scanStream(resp.Body, c.logger); err != nil {
		return NewEngineError("build", ref.String(), err.Error(), ErrBuildFailed)
	}

	c.logger.Info("image built", "ref", ref.String())
	return nil
}

// =============================================================================
// Push
// =============================================================================

// Push uploads the image to its registry. Push failures arrive inside the
// response stream with a successful HTTP status, so the stream is scanned
// the same way the build stream is.
func (c *Client) Push(ctx context.Context, ref domain.ImageRef, auth string) error {
	c.logger.Info("pushing image", "ref", ref.String())

	reader, err := c.api.ImagePush(ctx, ref.String(), image.PushOptions{
		RegistryAuth: auth,
	})
	if err != nil {
		return NewEngineError("push", ref.String(), err.Error(), ErrPushFailed)
	}
	defer reader.Close()

	if err := scanStream(reader, c.logger); err != nil {
		return NewEngineError("push", ref.String(), err.Error(), ErrPushFailed)
	}

	c.logger.Info("image pushed", "ref", ref.String())
	return nil
}

// =============================================================================
// Inspect
// =============================================================================

// Exists checks if an image is present in the local daemon.
func (c *Client) Exists(ctx context.Context, ref domain.ImageRef) (bool, error) {
	_, _, err := c.api.ImageInspectWithRaw(ctx, ref.String())
	if err != nil {
		if strings.Contains(err.Error(), "No such image") {
			return false, nil
		}
		return false, NewEngineError("inspect", ref.String(), err.Error(), err)
	}
	return true, nil
}
