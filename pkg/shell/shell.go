// Package shell runs the external programs lxt drives: the container control
// plane, the host firewall and the disk pool tools.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/lxt/lxt/pkg/logging"
)

// ExternalProcessError reports a non-zero exit (or failure to start) of an
// external command.
type ExternalProcessError struct {
	Argv     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExternalProcessError) Error() string {
	msg := fmt.Sprintf("`%s` failed", strings.Join(e.Argv, " "))
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" with exit status %d", e.ExitCode)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	} else if e.Err != nil && e.ExitCode <= 0 {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExternalProcessError) Unwrap() error {
	return e.Err
}

// Command describes one external invocation.
type Command struct {
	Argv []string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// Runner invokes external commands. Run captures stdout, Attach wires the
// command to the terminal for interactive sessions.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
	Attach(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands with os/exec, optionally behind sudo.
type ExecRunner struct {
	Sudo   bool
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func NewExecRunner(sudo bool) *ExecRunner {
	return &ExecRunner{
		Sudo:   sudo,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (r *ExecRunner) argv(cmd Command) []string {
	if r.Sudo {
		return append([]string{"sudo"}, cmd.Argv...)
	}
	return cmd.Argv
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) (string, error) {
	if len(cmd.Argv) == 0 {
		return "", fmt.Errorf("empty command")
	}
	argv := r.argv(cmd)
	logging.FromContext(ctx).Debug("running external command",
		logging.WithField("argv", strings.Join(argv, " ")),
		logging.WithField("dir", cmd.Dir))

	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = cmd.Dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		return stdout.String(), newExternalProcessError(argv, stderr.String(), err)
	}
	return stdout.String(), nil
}

func (r *ExecRunner) Attach(ctx context.Context, cmd Command) error {
	if len(cmd.Argv) == 0 {
		return fmt.Errorf("empty command")
	}
	argv := r.argv(cmd)
	logging.FromContext(ctx).Debug("attaching external command", logging.WithField("argv", strings.Join(argv, " ")))

	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = cmd.Dir
	c.Stdin = r.Stdin
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr

	if err := c.Run(); err != nil {
		return newExternalProcessError(argv, "", err)
	}
	return nil
}

func newExternalProcessError(argv []string, stderr string, err error) *ExternalProcessError {
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &ExternalProcessError{
		Argv:     append([]string(nil), argv...),
		ExitCode: exitCode,
		Stderr:   stderr,
		Err:      err,
	}
}

// ExitCode returns the exit status carried by err, or -1 when err is not an
// external process failure.
func ExitCode(err error) int {
	var procErr *ExternalProcessError
	if errors.As(err, &procErr) {
		return procErr.ExitCode
	}
	return -1
}
