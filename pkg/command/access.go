package command

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/juju/ansiterm"
	"github.com/lxt/lxt/pkg/color"
	"github.com/lxt/lxt/pkg/logging"
	"github.com/lxt/lxt/pkg/portforward"
	"github.com/lxt/lxt/pkg/shell"
	"github.com/lxt/lxt/pkg/ssh"
)

func sshUser(user string, env *Env) string {
	if user != "" {
		return user
	}
	if env.SSHUser != "" {
		return env.SSHUser
	}
	return "ubuntu"
}

// GenSSHKey writes a fresh key pair into the container directory and
// authorizes it for the ssh user inside the container.
type GenSSHKey struct {
	User string
}

func (c *GenSSHKey) Name() string { return ActionGenSSHKey }

func (c *GenSSHKey) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	user := sshUser(c.User, env)

	keyPath := filepath.Join(rec.Path, env.PrivateKey)
	pair, err := env.GenerateKeys(keyPath, fmt.Sprintf("%s@%s", user, rec.Name))
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	pub, err := ssh.ReadPublicKey(pair.PublicKeyPath)
	if err != nil {
		return err
	}
	if err := ssh.ValidatePublicKey(pub); err != nil {
		return err
	}

	sshDir := path.Join("/home", user, ".ssh")
	authorized := path.Join(sshDir, "authorized_keys")
	if err := env.ControlPlane.Exec(ctx, rec.Name, "mkdir", "-p", sshDir); err != nil {
		return err
	}
	if err := env.ControlPlane.PushFile(ctx, rec.Name, pair.PublicKeyPath, authorized); err != nil {
		return err
	}
	if err := env.ControlPlane.Exec(ctx, rec.Name, "chmod", "600", authorized); err != nil {
		return err
	}
	if err := env.ControlPlane.Exec(ctx, rec.Name, "chown", "-R", user+":"+user, sshDir); err != nil {
		return err
	}

	env.log().Info("ssh key installed", logging.WithContainer(rec.Name), logging.WithField("user", user))
	env.printf("{green}✓{reset} Generated %s and authorized it for %s\n", pair.PrivateKeyPath, user)
	return nil
}

// SSH opens an interactive ssh session to the container's main address
// using the generated key.
type SSH struct {
	User string
}

func (c *SSH) Name() string { return ActionSSH }

func (c *SSH) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	ip, err := env.ControlPlane.MainIP(ctx, rec.Name)
	if err != nil {
		return err
	}
	argv := []string{
		"ssh",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-i", filepath.Join(rec.Path, env.PrivateKey),
		sshUser(c.User, env) + "@" + ip,
	}
	return env.Runner.Attach(ctx, shell.Command{Argv: argv, Dir: rec.Path})
}

// Bash opens an interactive shell inside the container.
type Bash struct{}

func (c *Bash) Name() string { return ActionBash }

func (c *Bash) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	return env.ControlPlane.Attach(ctx, rec.Name)
}

// Info prints the record and its port-forward table.
type Info struct{}

func (c *Info) Name() string { return ActionInfo }

func (c *Info) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	if env.Out == nil {
		return nil
	}

	address := "(unavailable)"
	if ip, err := env.ControlPlane.MainIP(ctx, rec.Name); err == nil {
		address = ip
	} else {
		env.log().Debug("address lookup failed", logging.WithContainer(rec.Name), logging.WithError(err))
	}

	fmt.Fprintf(env.Out, "%s %s\n", color.Bold(env.Out, "Container:"), rec.Name)
	fmt.Fprintf(env.Out, "%s %s\n", color.Bold(env.Out, "Image:"), rec.Image)
	fmt.Fprintf(env.Out, "%s %s\n", color.Bold(env.Out, "Path:"), rec.Path)
	fmt.Fprintf(env.Out, "%s %s\n", color.Bold(env.Out, "Address:"), address)

	if len(rec.Portforwards) == 0 {
		fmt.Fprintln(env.Out, "No port-forwards")
		return nil
	}

	fmt.Fprintln(env.Out)
	w := ansiterm.NewTabWriter(env.Out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PROTOCOL\tHOST PORT\tCONTAINER PORT")
	for _, spec := range rec.Portforwards {
		rule, err := portforward.ParseStoredRule(spec)
		if err != nil {
			fmt.Fprintf(w, "?\t%s\t\n", spec)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\n", rule.Protocol, rule.SourcePort, rule.DestPort)
	}
	return w.Flush()
}
