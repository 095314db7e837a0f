// Package controlplane drives container lifecycle operations through the lxc
// command line client.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lxt/lxt/pkg/shell"
)

// ErrAddressUnavailable means the container has no resolvable IPv4 address,
// typically because it is stopped or still bringing up networking. Retrying
// later may succeed.
var ErrAddressUnavailable = errors.New("container address unavailable")

// LXC issues one lxc invocation per operation.
type LXC struct {
	runner shell.Runner
	Binary string
}

func NewLXC(runner shell.Runner, binary string) *LXC {
	if binary == "" {
		binary = "lxc"
	}
	return &LXC{runner: runner, Binary: binary}
}

func (c *LXC) run(ctx context.Context, args ...string) (string, error) {
	return c.runner.Run(ctx, shell.Command{Argv: append([]string{c.Binary}, args...)})
}

func (c *LXC) Start(ctx context.Context, name string) error {
	_, err := c.run(ctx, "start", name)
	return err
}

func (c *LXC) Stop(ctx context.Context, name string) error {
	_, err := c.run(ctx, "stop", name)
	return err
}

// ForceDelete removes the container even if it is running.
func (c *LXC) ForceDelete(ctx context.Context, name string) error {
	_, err := c.run(ctx, "delete", "--force", name)
	return err
}

// Publish exports the container as an image aliased to its own name.
func (c *LXC) Publish(ctx context.Context, name string) error {
	_, err := c.run(ctx, "publish", name, "--alias", name)
	return err
}

func (c *LXC) Snapshot(ctx context.Context, name, snapshot string) error {
	_, err := c.run(ctx, "snapshot", name, snapshot)
	return err
}

func (c *LXC) Restore(ctx context.Context, name, snapshot string) error {
	_, err := c.run(ctx, "restore", name, snapshot)
	return err
}

func (c *LXC) DeleteSnapshot(ctx context.Context, name, snapshot string) error {
	_, err := c.run(ctx, "delete", name+"/"+snapshot)
	return err
}

// Exec runs cmd inside the container.
func (c *LXC) Exec(ctx context.Context, name string, cmd ...string) error {
	args := append([]string{"exec", name, "--"}, cmd...)
	_, err := c.run(ctx, args...)
	return err
}

// PushFile copies a host file to dst inside the container.
func (c *LXC) PushFile(ctx context.Context, name, src, dst string) error {
	_, err := c.run(ctx, "file", "push", src, name+dst)
	return err
}

// Attach opens an interactive login shell in the container.
func (c *LXC) Attach(ctx context.Context, name string) error {
	return c.runner.Attach(ctx, shell.Command{Argv: []string{c.Binary, "exec", name, "--", "/bin/bash"}})
}

// MainIP returns the first IPv4 address lxc reports for the container.
func (c *LXC) MainIP(ctx context.Context, name string) (string, error) {
	out, err := c.run(ctx, "list", name, "--format", "csv", "-c", "4")
	if err != nil {
		return "", err
	}
	ip, ok := ParseIPv4(out)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAddressUnavailable, name)
	}
	return ip, nil
}

// ParseIPv4 extracts the first IPv4 address from lxc's address column, e.g.
// `"10.0.3.15 (eth0)\n172.17.0.1 (docker0)"`.
func ParseIPv4(out string) (string, bool) {
	fields := strings.FieldsFunc(out, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\r' || r == '\t' || r == '"' || r == ',' || r == '(' || r == ')'
	})
	for _, f := range fields {
		ip := net.ParseIP(f)
		if ip != nil && ip.To4() != nil {
			return ip.String(), true
		}
	}
	return "", false
}
