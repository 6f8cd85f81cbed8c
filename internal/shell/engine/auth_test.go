package engine

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Environment Credential Tests
// =============================================================================

func TestResolveRegistryAuth_FromEnvironment(t *testing.T) {
	t.Setenv(EnvRegistryUser, "ci-bot")
	t.Setenv(EnvRegistryPassword, "hunter2")

	encoded, err := ResolveRegistryAuth("registry.example.com")
	require.NoError(t, err)

	auth, err := registry.DecodeAuthConfig(encoded)
	require.NoError(t, err)
	assert.Equal(t, "ci-bot", auth.Username)
	assert.Equal(t, "hunter2", auth.Password)
	assert.Equal(t, "registry.example.com", auth.ServerAddress)
}

func TestResolveRegistryAuth_AnonymousFallback(t *testing.T) {
	t.Setenv(EnvRegistryUser, "")
	t.Setenv(EnvRegistryPassword, "")
	t.Setenv("HOME", t.TempDir()) // No docker config present

	encoded, err := ResolveRegistryAuth("registry.example.com")
	require.NoError(t, err)

	auth, err := registry.DecodeAuthConfig(encoded)
	require.NoError(t, err)
	assert.Empty(t, auth.Username)
	assert.Equal(t, "registry.example.com", auth.ServerAddress)
}

// =============================================================================
// Docker Config Tests
// =============================================================================

func TestAuthFromDockerConfig(t *testing.T) {
	configPath := writeDockerConfig(t, `{
  "auths": {
    "registry.example.com": {"auth": "`+basicAuth("deployer", "s3cret")+`"}
  }
}`)

	encoded, ok := authFromDockerConfig(configPath, "registry.example.com")
	require.True(t, ok)

	auth, err := registry.DecodeAuthConfig(encoded)
	require.NoError(t, err)
	assert.Equal(t, "deployer", auth.Username)
	assert.Equal(t, "s3cret", auth.Password)
}

func TestAuthFromDockerConfig_SchemeQualifiedKey(t *testing.T) {
	configPath := writeDockerConfig(t, `{
  "auths": {
    "https://registry.example.com": {"auth": "`+basicAuth("deployer", "s3cret")+`"}
  }
}`)

	_, ok := authFromDockerConfig(configPath, "registry.example.com")
	assert.True(t, ok)
}

func TestAuthFromDockerConfig_Misses(t *testing.T) {
	configPath := writeDockerConfig(t, `{
  "auths": {
    "other.registry.io": {"auth": "`+basicAuth("u", "p")+`"}
  }
}`)

	_, ok := authFromDockerConfig(configPath, "registry.example.com")
	assert.False(t, ok)

	_, ok = authFromDockerConfig(filepath.Join(t.TempDir(), "absent.json"), "registry.example.com")
	assert.False(t, ok)
}

func TestAuthFromDockerConfig_MalformedEntries(t *testing.T) {
	// Credential-helper entries have no inline auth and must be skipped.
	configPath := writeDockerConfig(t, `{
  "auths": {"registry.example.com": {}},
  "credHelpers": {"registry.example.com": "ecr-login"}
}`)

	_, ok := authFromDockerConfig(configPath, "registry.example.com")
	assert.False(t, ok)

	configPath = writeDockerConfig(t, `not json`)
	_, ok = authFromDockerConfig(configPath, "registry.example.com")
	assert.False(t, ok)
}

// =============================================================================
// Test Helpers
// =============================================================================

func writeDockerConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func basicAuth(user, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
}
