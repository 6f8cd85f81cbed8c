// Package domain contains the pure types shared by every caravel package:
// the resolved deployment configuration, image references, and the run state
// machine. Nothing in this package performs I/O; the shell packages feed it
// inputs and act on its outputs.
package domain

import (
	"errors"
	"fmt"
	"path"
	"time"
)

// =============================================================================
// Configuration Errors
// =============================================================================

var (
	ErrUnknownEnvironment = errors.New("unknown environment")
	ErrAppRequired        = errors.New("application name must be set")
	ErrRegistryRequired   = errors.New("registry must be set")
	ErrTagRequired        = errors.New("image tag must be set")
	ErrHostRequired       = errors.New("remote host must be set")
	ErrUserRequired       = errors.New("remote user must be set")
	ErrAppDirRequired     = errors.New("application directory must be set")
	ErrInvalidPort        = errors.New("port must be between 1 and 65535")
	ErrInvalidDuration    = errors.New("duration must be positive")
)

// =============================================================================
// Environment
// =============================================================================

// Environment selects the deployment flavor. It is part of the image
// repository name, so dev and prod builds never overwrite each other in the
// registry.
type Environment string

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"
)

// ParseEnvironment validates an environment token from the CLI.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvDev, EnvProd:
		return Environment(s), nil
	default:
		return "", fmt.Errorf("%w: %q (expected %q or %q)", ErrUnknownEnvironment, s, EnvDev, EnvProd)
	}
}

// =============================================================================
// Remote Layout
// =============================================================================

const (
	// ManifestFileName is the compose descriptor the remote backend reads.
	ManifestFileName = "docker-compose.yml"

	// BackupDirName is the subdirectory of the application directory that
	// holds timestamped copies of previously deployed manifests.
	BackupDirName = "backups"
)

// =============================================================================
// Config
// =============================================================================

// Config is the fully resolved configuration for one caravel invocation.
// It is assembled once from defaults, the config file, environment variables,
// and flags, and never mutated afterwards; the orchestrator receives it by
// value.
type Config struct {
	Environment Environment

	// Image coordinates.
	App      string
	Registry string
	Tag      string

	// Remote host.
	Host   string
	User   string
	Port   int
	AppDir string

	// SSH transport.
	SSHKeyPath     string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration

	// Health endpoint polled after a deploy.
	HealthPort     int
	HealthPath     string
	HealthTimeout  time.Duration
	HealthInterval time.Duration

	// Local build inputs.
	ManifestTemplate string
	BuildContext     string
	Dockerfile       string
}

// ValidateRemote checks the subset of the configuration every remote
// operation needs. A rollback runs against manifests already on the host,
// so image coordinates and health settings are not part of it.
func (c Config) ValidateRemote() error {
	if _, err := ParseEnvironment(string(c.Environment)); err != nil {
		return err
	}
	if c.Host == "" {
		return ErrHostRequired
	}
	if c.User == "" {
		return ErrUserRequired
	}
	if c.AppDir == "" {
		return ErrAppDirRequired
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: ssh port %d", ErrInvalidPort, c.Port)
	}
	for name, d := range map[string]time.Duration{
		"connect timeout": c.ConnectTimeout,
		"command timeout": c.CommandTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidDuration, name)
		}
	}
	return nil
}

// ValidateImage checks the coordinates needed to name an image, which is
// all a local build or push requires.
func (c Config) ValidateImage() error {
	if _, err := ParseEnvironment(string(c.Environment)); err != nil {
		return err
	}
	if c.App == "" {
		return ErrAppRequired
	}
	if c.Registry == "" {
		return ErrRegistryRequired
	}
	if c.Tag == "" {
		return ErrTagRequired
	}
	return nil
}

// Validate checks the invariants a deploy needs before any remote operation
// is attempted.
func (c Config) Validate() error {
	if err := c.ValidateRemote(); err != nil {
		return err
	}
	if err := c.ValidateImage(); err != nil {
		return err
	}
	if c.HealthPort < 1 || c.HealthPort > 65535 {
		return fmt.Errorf("%w: health port %d", ErrInvalidPort, c.HealthPort)
	}
	for name, d := range map[string]time.Duration{
		"health timeout":  c.HealthTimeout,
		"health interval": c.HealthInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidDuration, name)
		}
	}
	return nil
}

// Repository returns the environment-scoped image repository name,
// {app}-{environment}.
func (c Config) Repository() string {
	return fmt.Sprintf("%s-%s", c.App, c.Environment)
}

// Image returns the fully qualified image reference this invocation builds,
// pushes, and deploys.
func (c Config) Image() ImageRef {
	return ImageRef{
		Registry:   c.Registry,
		Repository: c.Repository(),
		Tag:        c.Tag,
	}
}

// ManifestPath returns the remote path of the live deployment descriptor.
func (c Config) ManifestPath() string {
	return path.Join(c.AppDir, ManifestFileName)
}

// BackupDir returns the remote directory holding manifest backups.
func (c Config) BackupDir() string {
	return path.Join(c.AppDir, BackupDirName)
}

// HealthURL returns the endpoint polled after the stack is started. The port
// is omitted for 80 so logs show the URL users would curl.
func (c Config) HealthURL() string {
	if c.HealthPort == 80 {
		return fmt.Sprintf("http://%s%s", c.Host, c.HealthPath)
	}
	return fmt.Sprintf("http://%s:%d%s", c.Host, c.HealthPort, c.HealthPath)
}
