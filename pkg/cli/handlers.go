package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lxt/lxt/pkg/command"
	"github.com/spf13/cobra"
)

type fillFunc func(cmd *cobra.Command, args []string, in *command.Instruction)

// reportedError marks an error the command queue already showed the operator.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// IsReported reports whether err was already printed to the operator.
func IsReported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}

func (f *CommandFactory) runAction(action string, fill fillFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		path, err := containerPath(cmd)
		if err != nil {
			return err
		}

		in := command.Instruction{
			Action:        action,
			ContainerPath: path,
		}
		if fill != nil {
			fill(cmd, args, &in)
		}
		if err := in.Validate(); err != nil {
			return err
		}

		if err := f.Executor.Execute(cmd.Context(), in); err != nil {
			return &reportedError{err: err}
		}
		return nil
	}
}

func containerPath(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid container path %q: %w", path, err)
	}
	return abs, nil
}

func withUser(cmd *cobra.Command, _ []string, in *command.Instruction) {
	in.SSHUser, _ = cmd.Flags().GetString("user")
}

func withRule(_ *cobra.Command, args []string, in *command.Instruction) {
	in.Portforward = args[0]
}

func withSnapshot(_ *cobra.Command, args []string, in *command.Instruction) {
	in.SnapName = args[0]
}
