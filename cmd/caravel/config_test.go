package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caravel-sh/caravel/internal/core/domain"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.App)
	assert.Equal(t, "", cfg.Registry)
	assert.Equal(t, "latest", cfg.Tag)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, ".", cfg.Build.Context)
	assert.Equal(t, "Dockerfile", cfg.Build.Dockerfile)
	assert.Equal(t, "docker-compose.template.yml", cfg.Build.Manifest)
	assert.Equal(t, 10*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, 2*time.Minute, cfg.SSH.CommandTimeout)
	assert.Equal(t, 80, cfg.Health.Port)
	assert.Equal(t, "/health", cfg.Health.Path)
	assert.Equal(t, 60*time.Second, cfg.Health.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Health.Interval)
	assert.Equal(t, 22, cfg.Deploy.Dev.Port)
	assert.Equal(t, 22, cfg.Deploy.Prod.Port)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
app: webapp
registry: registry.example.com

log:
  level: debug
  format: json

build:
  manifest: deploy/docker-compose.tmpl.yml

health:
  port: 9090
  timeout: 90s
  interval: 3s

deploy:
  dev:
    host: dev.example.com
    user: deploy
    app_dir: /srv/webapp
  prod:
    host: prod.example.com
    user: deploy
    port: 2222
`
	tmpFile := filepath.Join(t.TempDir(), "caravel.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "webapp", cfg.App)
	assert.Equal(t, "registry.example.com", cfg.Registry)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "deploy/docker-compose.tmpl.yml", cfg.Build.Manifest)
	assert.Equal(t, 9090, cfg.Health.Port)
	assert.Equal(t, 90*time.Second, cfg.Health.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Health.Interval)
	assert.Equal(t, "dev.example.com", cfg.Deploy.Dev.Host)
	assert.Equal(t, "/srv/webapp", cfg.Deploy.Dev.AppDir)
	assert.Equal(t, "prod.example.com", cfg.Deploy.Prod.Host)
	assert.Equal(t, 2222, cfg.Deploy.Prod.Port)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("CARAVEL_APP", "envapp")
	t.Setenv("CARAVEL_REGISTRY", "env.registry.example.com")
	t.Setenv("CARAVEL_TAG", "v2.0.0")
	t.Setenv("CARAVEL_DEPLOY_HOST", "override.example.com")
	t.Setenv("CARAVEL_DEPLOY_DEV_HOST", "dev.example.com")
	t.Setenv("CARAVEL_SSH_CONNECT_TIMEOUT", "30s")
	t.Setenv("CARAVEL_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "envapp", cfg.App)
	assert.Equal(t, "env.registry.example.com", cfg.Registry)
	assert.Equal(t, "v2.0.0", cfg.Tag)
	assert.Equal(t, "override.example.com", cfg.Deploy.Host)
	assert.Equal(t, "dev.example.com", cfg.Deploy.Dev.Host)
	assert.Equal(t, 30*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/caravel.yaml")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 80, cfg.Health.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Target Selection Tests
// =============================================================================

func TestConfig_Target_SelectsEnvironment(t *testing.T) {
	cfg := &Config{
		Deploy: DeployConfig{
			Dev:  TargetConfig{Host: "dev.example.com", User: "dev", Port: 22, AppDir: "/opt/dev"},
			Prod: TargetConfig{Host: "prod.example.com", User: "deploy", Port: 2222, AppDir: "/opt/prod"},
		},
	}

	dev := cfg.Target(domain.EnvDev)
	assert.Equal(t, "dev.example.com", dev.Host)
	assert.Equal(t, 22, dev.Port)

	prod := cfg.Target(domain.EnvProd)
	assert.Equal(t, "prod.example.com", prod.Host)
	assert.Equal(t, 2222, prod.Port)
	assert.Equal(t, "/opt/prod", prod.AppDir)
}

func TestConfig_Target_GenericOverrideWins(t *testing.T) {
	cfg := &Config{
		Deploy: DeployConfig{
			Host: "override.example.com",
			Port: 2200,
			Dev:  TargetConfig{Host: "dev.example.com", User: "dev", Port: 22},
		},
	}

	target := cfg.Target(domain.EnvDev)
	assert.Equal(t, "override.example.com", target.Host)
	assert.Equal(t, 2200, target.Port)
	assert.Equal(t, "dev", target.User)
}

func TestConfig_Target_DefaultPort(t *testing.T) {
	cfg := &Config{
		Deploy: DeployConfig{
			Dev: TargetConfig{Host: "dev.example.com"},
		},
	}

	assert.Equal(t, 22, cfg.Target(domain.EnvDev).Port)
}

// =============================================================================
// Invocation Resolution Tests
// =============================================================================

func TestResolveConfig_FromFileConfig(t *testing.T) {
	cfg := testFileConfig()
	cmd := testCommand(t, nil)

	dcfg := resolveConfig(cmd, cfg, domain.EnvProd)

	assert.Equal(t, domain.EnvProd, dcfg.Environment)
	assert.Equal(t, "webapp", dcfg.App)
	assert.Equal(t, "registry.example.com", dcfg.Registry)
	assert.Equal(t, "latest", dcfg.Tag)
	assert.Equal(t, "prod.example.com", dcfg.Host)
	assert.Equal(t, "deploy", dcfg.User)
	assert.Equal(t, 22, dcfg.Port)
	assert.Equal(t, "/opt/webapp", dcfg.AppDir)
	assert.Equal(t, 8080, dcfg.HealthPort)
	assert.NoError(t, dcfg.ValidateRemote())
}

func TestResolveConfig_FlagsWin(t *testing.T) {
	cfg := testFileConfig()
	cmd := testCommand(t, []string{
		"--tag", "v9.9.9",
		"--host", "flagged.example.com",
		"--port", "2022",
		"--app-dir", "/srv/elsewhere",
		"--timeout", "90s",
	})

	dcfg := resolveConfig(cmd, cfg, domain.EnvProd)

	assert.Equal(t, "v9.9.9", dcfg.Tag)
	assert.Equal(t, "flagged.example.com", dcfg.Host)
	assert.Equal(t, 2022, dcfg.Port)
	assert.Equal(t, "/srv/elsewhere", dcfg.AppDir)
	assert.Equal(t, 90*time.Second, dcfg.HealthTimeout)
}

func TestResolveConfig_AppDirConvention(t *testing.T) {
	cfg := testFileConfig()
	cfg.Deploy.Prod.AppDir = ""
	cmd := testCommand(t, nil)

	dcfg := resolveConfig(cmd, cfg, domain.EnvProd)

	assert.Equal(t, "/opt/webapp", dcfg.AppDir)
}

func TestResolveConfig_UnsetFlagsDoNotClobber(t *testing.T) {
	cfg := testFileConfig()
	cmd := testCommand(t, []string{"--tag", "v1.0.0"})

	dcfg := resolveConfig(cmd, cfg, domain.EnvProd)

	assert.Equal(t, "prod.example.com", dcfg.Host)
	assert.Equal(t, 22, dcfg.Port)
	assert.Equal(t, 60*time.Second, dcfg.HealthTimeout)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "invalid"} {
		t.Run(level, func(t *testing.T) {
			cfg := &Config{Log: LogConfig{Level: level, Format: "text"}}
			assert.NotNil(t, SetupLogger(cfg))
		})
	}
}

func TestSetupLogger_JSONFormat(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "info", Format: "json"}}
	assert.NotNil(t, SetupLogger(cfg))
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"CARAVEL_APP",
		"CARAVEL_REGISTRY",
		"CARAVEL_TAG",
		"CARAVEL_LOG_LEVEL",
		"CARAVEL_LOG_FORMAT",
		"CARAVEL_DEPLOY_HOST",
		"CARAVEL_DEPLOY_USER",
		"CARAVEL_DEPLOY_PORT",
		"CARAVEL_DEPLOY_APP_DIR",
		"CARAVEL_DEPLOY_DEV_HOST",
		"CARAVEL_DEPLOY_PROD_HOST",
		"CARAVEL_SSH_KEY",
		"CARAVEL_SSH_CONNECT_TIMEOUT",
		"CARAVEL_HEALTH_PORT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

// testFileConfig is what a loaded caravel.yaml for a typical project looks
// like after defaults are applied.
func testFileConfig() *Config {
	return &Config{
		App:      "webapp",
		Registry: "registry.example.com",
		Tag:      "latest",
		Log:      LogConfig{Level: "info", Format: "text"},
		Build: BuildConfig{
			Context:    ".",
			Dockerfile: "Dockerfile",
			Manifest:   "docker-compose.template.yml",
		},
		SSH: SSHConfig{
			ConnectTimeout: 10 * time.Second,
			CommandTimeout: 2 * time.Minute,
		},
		Health: HealthConfig{
			Port:     8080,
			Path:     "/health",
			Timeout:  60 * time.Second,
			Interval: 5 * time.Second,
		},
		Deploy: DeployConfig{
			Dev:  TargetConfig{Host: "dev.example.com", User: "deploy", Port: 22, AppDir: "/opt/webapp"},
			Prod: TargetConfig{Host: "prod.example.com", User: "deploy", Port: 22, AppDir: "/opt/webapp"},
		},
	}
}

// testCommand builds a command carrying the deploy flag set with args
// parsed, so resolveConfig sees flags exactly as cobra would hand them
// over.
func testCommand(t *testing.T, args []string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{Use: "test"}
	addRemoteFlags(cmd)
	cmd.Flags().String("tag", "", "")
	cmd.Flags().String("manifest", "", "")
	cmd.Flags().String("registry", "", "")
	cmd.Flags().String("app", "", "")
	cmd.Flags().Duration("timeout", 0, "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}
