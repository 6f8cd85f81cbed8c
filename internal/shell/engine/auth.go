package engine

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/registry"
)

// Registry credential sources, in precedence order: explicit environment
// variables, then the auth entries docker login writes to
// ~/.docker/config.json. Credential helper binaries are not consulted.
const (
	EnvRegistryUser     = "CARAVEL_REGISTRY_USER"
	EnvRegistryPassword = "CARAVEL_REGISTRY_PASSWORD"
)

// ResolveRegistryAuth produces the encoded auth payload for pushes to
// registryHost. With no credentials anywhere, an anonymous payload is
// returned and the registry decides whether to accept the push.
func ResolveRegistryAuth(registryHost string) (string, error) {
	user := os.Getenv(EnvRegistryUser)
	password := os.Getenv(EnvRegistryPassword)
	if user != "" && password != "" {
		return registry.EncodeAuthConfig(registry.AuthConfig{
			Username:      user,
			Password:      password,
			ServerAddress: registryHost,
		})
	}

	if home, err := os.UserHomeDir(); err == nil {
		configPath := filepath.Join(home, ".docker", "config.json")
		if auth, ok := authFromDockerConfig(configPath, registryHost); ok {
			return auth, nil
		}
	}

	return registry.EncodeAuthConfig(registry.AuthConfig{ServerAddress: registryHost})
}

// authFromDockerConfig looks registryHost up in a docker CLI config file.
// Only inline base64 auth entries are understood.
func authFromDockerConfig(configPath, registryHost string) (string, bool) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return "", false
	}

	var config struct {
		Auths map[string]struct {
			Auth string `json:"auth"`
		} `json:"auths"`
	}
	if err := json.Unmarshal(raw, &config); err != nil {
		return "", false
	}

	for _, key := range []string{registryHost, "https://" + registryHost, "http://" + registryHost} {
		entry, ok := config.Auths[key]
		if !ok || entry.Auth == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(entry.Auth)
		if err != nil {
			continue
		}
		user, password, ok := strings.Cut(string(decoded), ":")
		if !ok {
			continue
		}
		encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
			Username:      user,
			Password:      password,
			ServerAddress: registryHost,
		})
		if err != nil {
			continue
		}
		return encoded, true
	}
	return "", false
}
