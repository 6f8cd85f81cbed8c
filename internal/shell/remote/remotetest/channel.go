// Package remotetest provides an in-memory Channel for orchestrator tests.
// Commands are matched by prefix against scripted responses and recorded in
// order, so tests can assert both what ran and what never ran.
package remotetest

import (
	"context"
	"strings"

	"github.com/caravel-sh/caravel/internal/shell/remote"
)

// Response is what a scripted command returns.
type Response struct {
	Stdout string
	Stderr string
	Err    error
}

type rule struct {
	prefix string
	resp   Response
}

// Channel implements remote.Channel against scripted responses. The zero
// rule set answers every command with success and empty output, so tests
// only script the commands they care about.
type Channel struct {
	rules []rule

	// Commands records every command line Run received, in order.
	Commands []string

	// Uploads records content by remote path.
	Uploads map[string][]byte

	// UploadErr fails every Upload when set.
	UploadErr error

	// PingErr fails Ping when set.
	PingErr error

	// Closed reports whether Close was called.
	Closed bool
}

// NewChannel creates an empty scripted channel.
func NewChannel() *Channel {
	return &Channel{Uploads: make(map[string][]byte)}
}

// Stub scripts a response for command lines starting with prefix. Later
// stubs win over earlier ones, so tests can override a default.
func (c *Channel) Stub(prefix string, resp Response) {
	c.rules = append(c.rules, rule{prefix: prefix, resp: resp})
}

// StubExit scripts a non-zero exit for command lines starting with prefix.
func (c *Channel) StubExit(prefix string, code int, stderr string) {
	c.Stub(prefix, Response{
		Stderr: stderr,
		Err:    remote.NewCommandError(prefix, code, stderr, nil),
	})
}

// Ping implements remote.Channel.
func (c *Channel) Ping(ctx context.Context) error {
	return c.PingErr
}

// Run implements remote.Channel.
func (c *Channel) Run(ctx context.Context, cmd remote.Command) (remote.Output, error) {
	line := cmd.String()
	c.Commands = append(c.Commands, line)

	for i := len(c.rules) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, c.rules[i].prefix) {
			r := c.rules[i].resp
			return remote.Output{Stdout: r.Stdout, Stderr: r.Stderr}, r.Err
		}
	}
	return remote.Output{}, nil
}

// Upload implements remote.Channel.
func (c *Channel) Upload(ctx context.Context, content []byte, remotePath string) error {
	if c.UploadErr != nil {
		return c.UploadErr
	}
	c.Uploads[remotePath] = append([]byte(nil), content...)
	return nil
}

// Close implements remote.Channel.
func (c *Channel) Close() error {
	c.Closed = true
	return nil
}

// Ran reports whether any recorded command line starts with prefix.
func (c *Channel) Ran(prefix string) bool {
	for _, line := range c.Commands {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
