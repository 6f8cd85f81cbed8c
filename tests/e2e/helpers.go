// Package e2e provides end-to-end testing utilities for caravel.
package e2e

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caravel-sh/caravel/internal/core/domain"
	"github.com/caravel-sh/caravel/internal/shell/deploy"
	"github.com/caravel-sh/caravel/internal/shell/health"
	"github.com/caravel-sh/caravel/internal/shell/remote"
)

// =============================================================================
// Local Channel
// =============================================================================

// localChannel satisfies remote.Channel by feeding the serialized command
// line to the local shell. mkdir, test, ls, and cp run for real against the
// application directory, and every line passes through the same quoting the
// SSH transport uses.
type localChannel struct{}

func (c *localChannel) Ping(ctx context.Context) error {
	return exec.CommandContext(ctx, "sh", "-c", "true").Run()
}

func (c *localChannel) Run(ctx context.Context, cmd remote.Command) (remote.Output, error) {
	line := cmd.String()
	proc := exec.CommandContext(ctx, "sh", "-c", line)

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	err := proc.Run()
	out := remote.Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, remote.NewCommandError(line, exitErr.ExitCode(), out.Stderr, err)
		}
		return out, err
	}
	return out, nil
}

func (c *localChannel) Upload(ctx context.Context, content []byte, remotePath string) error {
	if err := os.MkdirAll(filepath.Dir(remotePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(remotePath, content, 0o644)
}

func (c *localChannel) Close() error {
	return nil
}

// =============================================================================
// Stub Backend
// =============================================================================

// stubBackend records compose verbs instead of running them; pull, stop, and
// start need a container engine the suite cannot assume.
type stubBackend struct {
	calls []string
}

func (b *stubBackend) Detect(ctx context.Context) error {
	b.calls = append(b.calls, "detect")
	return nil
}

func (b *stubBackend) Pull(ctx context.Context) error {
	b.calls = append(b.calls, "pull")
	return nil
}

func (b *stubBackend) Stop(ctx context.Context) error {
	b.calls = append(b.calls, "stop")
	return nil
}

func (b *stubBackend) Start(ctx context.Context) error {
	b.calls = append(b.calls, "start")
	return nil
}

// =============================================================================
// Health Endpoint
// =============================================================================

// healthEndpoint is a local stand-in for the deployed application. Status is
// the code it answers with; FailFirst makes the first n requests answer 503,
// which is how a stack still booting looks to the prober.
type healthEndpoint struct {
	Status    atomic.Int64
	FailFirst atomic.Int64

	requests atomic.Int64
	srv      *httptest.Server
}

// startHealthEndpoint runs a healthy endpoint on a loopback port.
func startHealthEndpoint(t *testing.T) *healthEndpoint {
	t.Helper()
	ep := &healthEndpoint{}
	ep.Status.Store(http.StatusOK)
	ep.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ep.requests.Add(1) <= ep.FailFirst.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(int(ep.Status.Load()))
	}))
	t.Cleanup(ep.srv.Close)
	return ep
}

// =============================================================================
// Pipeline Rig
// =============================================================================

// pipeline wires one application directory, one health endpoint, and one
// recording backend together; scenarios drive deploys and rollbacks through
// it the way the CLI would.
type pipeline struct {
	cfg      domain.Config
	backend  *stubBackend
	endpoint *healthEndpoint
}

// newPipeline stands up a pipeline rooted at appDir with a healthy endpoint.
func newPipeline(t *testing.T, appDir string) *pipeline {
	t.Helper()

	ep := startHealthEndpoint(t)
	u, err := url.Parse(ep.srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return &pipeline{
		cfg: domain.Config{
			Environment:      domain.EnvDev,
			App:              "webapp",
			Registry:         "registry.example.com",
			Host:             u.Hostname(),
			User:             "e2e",
			Port:             22,
			AppDir:           appDir,
			ConnectTimeout:   10 * time.Second,
			CommandTimeout:   time.Minute,
			HealthPort:       port,
			HealthPath:       "/health",
			HealthTimeout:    2 * time.Second,
			HealthInterval:   25 * time.Millisecond,
			ManifestTemplate: filepath.Join("fixtures", "webapp.yaml"),
		},
		backend:  &stubBackend{},
		endpoint: ep,
	}
}

// deploy runs one deploy of tag through a fresh orchestrator.
func (p *pipeline) deploy(t *testing.T, tag string) domain.Result {
	t.Helper()
	cfg := p.cfg
	cfg.Tag = tag
	orch := deploy.New(cfg, &localChannel{}, p.backend, health.NewProber(nil, quietLogger()), quietLogger())
	return orch.Deploy(context.Background())
}

// rollback runs one rollback through a fresh orchestrator.
func (p *pipeline) rollback(t *testing.T) domain.Result {
	t.Helper()
	orch := deploy.New(p.cfg, &localChannel{}, p.backend, health.NewProber(nil, quietLogger()), quietLogger())
	return orch.Rollback(context.Background())
}

// manifest reads the live manifest from the application directory.
func (p *pipeline) manifest(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.cfg.AppDir, domain.ManifestFileName))
	require.NoError(t, err)
	return string(data)
}

// backups lists the backup file names currently on disk.
func (p *pipeline) backups(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(p.cfg.AppDir, domain.BackupDirName))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

// renderedFor is the manifest content a deploy of tag writes.
func (p *pipeline) renderedFor(t *testing.T, tag string) string {
	t.Helper()
	cfg := p.cfg
	cfg.Tag = tag
	return strings.ReplaceAll(LoadFixture(t, "webapp.yaml"), "{{IMAGE}}", cfg.Image().String())
}

// =============================================================================
// Fixtures
// =============================================================================

// LoadFixture reads a file from the fixtures directory.
func LoadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("fixtures", name))
	require.NoError(t, err, "failed to load fixture %s", name)
	return string(data)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
