package main

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/caravel-sh/caravel/internal/core/domain"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds the file and environment configuration shared by every
// command. Per-invocation values, the environment token and any flag
// overrides, are resolved on top of it into a domain.Config.
type Config struct {
	App      string       `mapstructure:"app"`
	Registry string       `mapstructure:"registry"`
	Tag      string       `mapstructure:"tag"`
	Log      LogConfig    `mapstructure:"log"`
	Build    BuildConfig  `mapstructure:"build"`
	SSH      SSHConfig    `mapstructure:"ssh"`
	Health   HealthConfig `mapstructure:"health"`
	Deploy   DeployConfig `mapstructure:"deploy"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BuildConfig holds the local build inputs.
type BuildConfig struct {
	Context    string `mapstructure:"context"`
	Dockerfile string `mapstructure:"dockerfile"`
	Manifest   string `mapstructure:"manifest"`
}

// SSHConfig holds the SSH transport settings.
type SSHConfig struct {
	Key            string        `mapstructure:"key"`
	KnownHosts     string        `mapstructure:"known_hosts"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// HealthConfig describes the endpoint polled after a deploy.
type HealthConfig struct {
	Port     int           `mapstructure:"port"`
	Path     string        `mapstructure:"path"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Interval time.Duration `mapstructure:"interval"`
}

// DeployConfig holds the per-environment targets. The top-level fields
// override whichever target is selected; that is what the CARAVEL_DEPLOY_*
// variables set.
type DeployConfig struct {
	Host   string `mapstructure:"host"`
	User   string `mapstructure:"user"`
	Port   int    `mapstructure:"port"`
	AppDir string `mapstructure:"app_dir"`

	Dev  TargetConfig `mapstructure:"dev"`
	Prod TargetConfig `mapstructure:"prod"`
}

// TargetConfig is one environment's remote coordinates.
type TargetConfig struct {
	Host   string `mapstructure:"host"`
	User   string `mapstructure:"user"`
	Port   int    `mapstructure:"port"`
	AppDir string `mapstructure:"app_dir"`
}

// Target returns the coordinates for env with the generic deploy overrides
// applied.
func (c *Config) Target(env domain.Environment) TargetConfig {
	target := c.Deploy.Dev
	if env == domain.EnvProd {
		target = c.Deploy.Prod
	}
	if c.Deploy.Host != "" {
		target.Host = c.Deploy.Host
	}
	if c.Deploy.User != "" {
		target.User = c.Deploy.User
	}
	if c.Deploy.Port != 0 {
		target.Port = c.Deploy.Port
	}
	if c.Deploy.AppDir != "" {
		target.AppDir = c.Deploy.AppDir
	}
	if target.Port == 0 {
		target.Port = 22
	}
	return target
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment. Precedence is
// environment over file over defaults; flag overrides are applied later by
// resolveConfig.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Defaults double as the key registry: AutomaticEnv only surfaces
	// variables for keys viper already knows.
	v.SetDefault("app", "")
	v.SetDefault("registry", "")
	v.SetDefault("tag", "latest")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("build.context", ".")
	v.SetDefault("build.dockerfile", "Dockerfile")
	v.SetDefault("build.manifest", "docker-compose.template.yml")
	v.SetDefault("ssh.key", "")
	v.SetDefault("ssh.known_hosts", "")
	v.SetDefault("ssh.connect_timeout", "10s")
	v.SetDefault("ssh.command_timeout", "2m")
	v.SetDefault("health.port", 80)
	v.SetDefault("health.path", "/health")
	v.SetDefault("health.timeout", "60s")
	v.SetDefault("health.interval", "5s")
	v.SetDefault("deploy.host", "")
	v.SetDefault("deploy.user", "")
	v.SetDefault("deploy.port", 0)
	v.SetDefault("deploy.app_dir", "")
	for _, env := range []string{"dev", "prod"} {
		v.SetDefault("deploy."+env+".host", "")
		v.SetDefault("deploy."+env+".user", "")
		v.SetDefault("deploy."+env+".port", 22)
		v.SetDefault("deploy."+env+".app_dir", "")
	}

	// Load from file: the given path, or caravel.yaml in the working
	// directory.
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("caravel")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		// Only a malformed file is fatal; a missing one means defaults.
		if _, ok := err.(viper.ConfigParseError); ok {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("CARAVEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Invocation Resolution
// =============================================================================

// resolveConfig builds the immutable configuration for one invocation: the
// selected environment's target with any command-line overrides on top.
// Precedence end to end is flags, then environment variables, then the
// config file, then defaults.
func resolveConfig(cmd *cobra.Command, cfg *Config, env domain.Environment) domain.Config {
	target := cfg.Target(env)

	dcfg := domain.Config{
		Environment:      env,
		App:              cfg.App,
		Registry:         cfg.Registry,
		Tag:              cfg.Tag,
		Host:             target.Host,
		User:             target.User,
		Port:             target.Port,
		AppDir:           target.AppDir,
		SSHKeyPath:       cfg.SSH.Key,
		ConnectTimeout:   cfg.SSH.ConnectTimeout,
		CommandTimeout:   cfg.SSH.CommandTimeout,
		HealthPort:       cfg.Health.Port,
		HealthPath:       cfg.Health.Path,
		HealthTimeout:    cfg.Health.Timeout,
		HealthInterval:   cfg.Health.Interval,
		ManifestTemplate: cfg.Build.Manifest,
		BuildContext:     cfg.Build.Context,
		Dockerfile:       cfg.Build.Dockerfile,
	}

	flags := cmd.Flags()
	for name, dst := range map[string]*string{
		"tag":        &dcfg.Tag,
		"app":        &dcfg.App,
		"registry":   &dcfg.Registry,
		"host":       &dcfg.Host,
		"user":       &dcfg.User,
		"app-dir":    &dcfg.AppDir,
		"ssh-key":    &dcfg.SSHKeyPath,
		"manifest":   &dcfg.ManifestTemplate,
		"context":    &dcfg.BuildContext,
		"dockerfile": &dcfg.Dockerfile,
	} {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Changed("port") {
		dcfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("timeout") {
		dcfg.HealthTimeout, _ = flags.GetDuration("timeout")
	}

	// The conventional layout on the host is /opt/{app}.
	if dcfg.AppDir == "" && dcfg.App != "" {
		dcfg.AppDir = path.Join("/opt", dcfg.App)
	}

	return dcfg
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format. Logs
// go to stderr; stdout carries command output only.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
