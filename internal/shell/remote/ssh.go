package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig configures the SSH channel.
type SSHConfig struct {
	Host           string
	User           string
	Port           int
	KeyPath        string        // Default: ~/.ssh/id_ed25519
	KnownHostsPath string        // Default: ~/.ssh/known_hosts
	ConnectTimeout time.Duration // Default: 10 seconds
	CommandTimeout time.Duration // Default: 2 minutes
}

// SSHChannel implements Channel over a lazily established SSH connection.
// Each Run gets its own session; the connection is reused and re-dialed if
// a keepalive probe finds it dead.
type SSHChannel struct {
	addr           string
	user           string
	signer         ssh.Signer
	hostKeys       ssh.HostKeyCallback
	connectTimeout time.Duration
	commandTimeout time.Duration
	logger         *slog.Logger

	client *ssh.Client
	mu     sync.Mutex // Protects client
}

// NewSSHChannel builds an SSH channel for the deployment host. The private
// key is read and parsed eagerly so a bad key fails before any remote state
// is touched; the connection itself is dialed on first use.
func NewSSHChannel(cfg SSHConfig, logger *slog.Logger) (*SSHChannel, error) {
	if cfg.KeyPath == "" {
		cfg.KeyPath = "~/.ssh/id_ed25519"
	}
	if cfg.KnownHostsPath == "" {
		cfg.KnownHostsPath = "~/.ssh/known_hosts"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 2 * time.Minute
	}

	keyPath := expandHome(cfg.KeyPath)
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyUnreadable, keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyInvalid, keyPath, err)
	}

	hostKeys, err := knownhosts.New(expandHome(cfg.KnownHostsPath))
	if err != nil {
		// A host never connected to before has no known_hosts entry yet.
		logger.Warn("known_hosts unavailable, host key verification disabled",
			"path", cfg.KnownHostsPath,
			"error", err)
		hostKeys = ssh.InsecureIgnoreHostKey()
	}

	return &SSHChannel{
		addr:           net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		user:           cfg.User,
		signer:         signer,
		hostKeys:       hostKeys,
		connectTimeout: cfg.ConnectTimeout,
		commandTimeout: cfg.CommandTimeout,
		logger:         logger.With("component", "ssh", "host", cfg.Host),
	}, nil
}

// =============================================================================
// Connection Management
// =============================================================================

// connect establishes the SSH connection if not already connected.
func (c *SSHChannel) connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		// Check if connection is still alive
		_, _, err := c.client.SendRequest("keepalive@caravel", true, nil)
		if err == nil {
			return nil
		}
		// Connection dead, reconnect
		c.client.Close()
		c.client = nil
	}

	config := &ssh.ClientConfig{
		User:            c.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.hostKeys,
		Timeout:         c.connectTimeout,
	}

	client, err := ssh.Dial("tcp", c.addr, config)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, c.addr, err)
	}

	c.logger.Debug("ssh connection established", "addr", c.addr)
	c.client = client
	return nil
}

// Ping verifies the host is reachable and a session can run a command.
func (c *SSHChannel) Ping(ctx context.Context) error {
	_, err := c.Run(ctx, Cmd("true"))
	return err
}

// Close closes the SSH connection.
func (c *SSHChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// =============================================================================
// Command Execution
// =============================================================================

// Run executes a command in its own SSH session.
func (c *SSHChannel) Run(ctx context.Context, cmd Command) (Output, error) {
	if err := c.connect(ctx); err != nil {
		return Output{}, err
	}

	c.mu.Lock()
	session, err := c.client.NewSession()
	c.mu.Unlock()
	if err != nil {
		return Output{}, fmt.Errorf("create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	line := cmd.String()
	c.logger.Debug("running remote command", "cmd", line)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	case <-time.After(c.commandTimeout):
		return Output{}, fmt.Errorf("%w: %q after %v", ErrTimeout, line, c.commandTimeout)
	case err := <-done:
		out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return out, NewCommandError(line, exitErr.ExitStatus(), out.Stderr, err)
			}
			return out, fmt.Errorf("run %q: %w", line, err)
		}
		return out, nil
	}
}

// Upload writes content to remotePath through stdin of a remote shell.
// The content lands in a staging file first and is renamed over the
// destination, which is atomic within one filesystem.
func (c *SSHChannel) Upload(ctx context.Context, content []byte, remotePath string) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	session, err := c.client.NewSession()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("create SSH session: %w", err)
	}
	defer session.Close()

	dir := path.Dir(remotePath)
	staging := remotePath + ".tmp"
	line := fmt.Sprintf("mkdir -p %s && cat > %s && mv -f %s %s",
		quote(dir), quote(staging), quote(staging), quote(remotePath))

	session.Stdin = bytes.NewReader(content)

	c.logger.Debug("uploading file", "path", remotePath, "bytes", len(content))

	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.commandTimeout):
		return fmt.Errorf("%w: upload %s after %v", ErrTimeout, remotePath, c.commandTimeout)
	case err := <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return NewCommandError(line, exitErr.ExitStatus(), "", err)
			}
			return fmt.Errorf("upload %s: %w", remotePath, err)
		}
		return nil
	}
}

// expandHome resolves a leading ~/ against the current user's home
// directory, matching what the ssh command line tool accepts.
func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		if p == "~" {
			return home
		}
		return filepath.Join(home, p[2:])
	}
	return p
}
