package cli

import (
	"fmt"

	"github.com/lxt/lxt/pkg/command"
	"github.com/lxt/lxt/pkg/config"
	"github.com/lxt/lxt/pkg/logging"
	"github.com/spf13/cobra"
)

// CommandFactory creates CLI commands with injected dependencies
type CommandFactory struct {
	Config   *config.Config
	Executor Executor
}

// NewCommandFactory creates a factory with real dependencies
func NewCommandFactory() (*CommandFactory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &CommandFactory{
		Config:   cfg,
		Executor: NewQueueExecutor(cfg, logging.Default()),
	}, nil
}

// NewTestCommandFactory creates a factory with mock dependencies
func NewTestCommandFactory(cfg *config.Config, executor Executor) *CommandFactory {
	return &CommandFactory{
		Config:   cfg,
		Executor: executor,
	}
}

// RootCmd returns the lxt command tree.
func (f *CommandFactory) RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lxt",
		Short: "Manage one LXD container and its port-forwards per directory",
		Long: `lxt manages an LXD container whose configuration lives in a project
directory. Port-forward rules are installed as DNAT rules on the host and
recorded next to the container, and the two are kept in step.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringP("path", "p", "", "container directory (default: current directory)")

	root.AddCommand(
		f.InitCmd(),
		f.StartCmd(),
		f.StopCmd(),
		f.DeleteCmd(),
		f.LaunchCmd(),
		f.GenSSHKeyCmd(),
		f.SSHCmd(),
		f.BashCmd(),
		f.ToImageCmd(),
		f.AddPortforwardCmd(),
		f.RemovePortforwardCmd(),
		f.CheckPortforwardCmd(),
		f.InfoCmd(),
		f.TakeSnapshotCmd(),
		f.RestoreSnapshotCmd(),
		f.DeleteSnapshotCmd(),
		f.ExpandDiskCmd(),
	)
	return root
}

// InitCmd returns the init command with injected dependencies
func (f *CommandFactory) InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <image>",
		Short: "Record a new container for this directory",
		Long:  `Creates the container record for the directory. The container is named after the directory unless --name is given. Nothing is started.`,
		Args:  cobra.ExactArgs(1),
		RunE: f.runAction(command.ActionInit, func(cmd *cobra.Command, args []string, in *command.Instruction) {
			in.Image = args[0]
			in.ContainerName, _ = cmd.Flags().GetString("name")
			in.Scaffold, _ = cmd.Flags().GetBool("scaffold")
		}),
	}
	cmd.Flags().String("name", "", "container name")
	cmd.Flags().Bool("scaffold", false, "write a starter setup.sh if the directory has none")
	return cmd
}

func (f *CommandFactory) StartCmd() *cobra.Command {
	return f.simple("start", "Start the container", command.ActionStart)
}

func (f *CommandFactory) StopCmd() *cobra.Command {
	return f.simple("stop", "Stop the container", command.ActionStop)
}

// DeleteCmd returns the delete command with injected dependencies
func (f *CommandFactory) DeleteCmd() *cobra.Command {
	cmd := f.simple("delete", "Remove port-forwards, force-delete the container and its record", command.ActionDelete)
	cmd.Aliases = []string{"rm"}
	return cmd
}

func (f *CommandFactory) LaunchCmd() *cobra.Command {
	return f.simple("launch", "Start the container and run the setup script", command.ActionLaunch)
}

func (f *CommandFactory) GenSSHKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen-sshkey",
		Short: "Generate a key pair and authorize it inside the container",
		Args:  cobra.NoArgs,
		RunE:  f.runAction(command.ActionGenSSHKey, withUser),
	}
	cmd.Flags().StringP("user", "u", "", "user inside the container (default from config)")
	return cmd
}

// SSHCmd returns the ssh command with injected dependencies
func (f *CommandFactory) SSHCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ssh",
		Short: "SSH into the container with the generated key",
		Args:  cobra.NoArgs,
		RunE:  f.runAction(command.ActionSSH, withUser),
	}
	cmd.Flags().StringP("user", "u", "", "user inside the container (default from config)")
	return cmd
}

func (f *CommandFactory) BashCmd() *cobra.Command {
	return f.simple("bash", "Open a shell inside the container", command.ActionBash)
}

func (f *CommandFactory) ToImageCmd() *cobra.Command {
	return f.simple("toimg", "Stop the container, publish it as an image and start it again", command.ActionToImage)
}

// AddPortforwardCmd returns the add-pfd command with injected dependencies
func (f *CommandFactory) AddPortforwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add-pfd <protocol:host-port:container-port>",
		Short:   "Forward a host port to the container",
		Example: "  lxt add-pfd tcp:8080:80",
		Args:    cobra.ExactArgs(1),
		RunE:    f.runAction(command.ActionAddPortforward, withRule),
	}
}

func (f *CommandFactory) RemovePortforwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove-pfd <protocol:host-port:container-port>",
		Short:   "Remove a port-forward",
		Example: "  lxt remove-pfd tcp:8080:80",
		Args:    cobra.ExactArgs(1),
		RunE:    f.runAction(command.ActionRemovePortfwd, withRule),
	}
}

func (f *CommandFactory) CheckPortforwardCmd() *cobra.Command {
	return f.simple("check-pfd", "Report recorded port-forwards missing from the firewall", command.ActionCheckPortfwd)
}

func (f *CommandFactory) InfoCmd() *cobra.Command {
	return f.simple("info", "Show the container record and its port-forwards", command.ActionInfo)
}

func (f *CommandFactory) TakeSnapshotCmd() *cobra.Command {
	return f.simple("take-snap", "Take a timestamped snapshot", command.ActionTakeSnapshot)
}

func (f *CommandFactory) RestoreSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore-snap <snapshot>",
		Short: "Restore the container to a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  f.runAction(command.ActionRestoreSnap, withSnapshot),
	}
}

func (f *CommandFactory) DeleteSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del-snap <snapshot>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  f.runAction(command.ActionDeleteSnap, withSnapshot),
	}
}

// ExpandDiskCmd returns the expand-disk command with injected dependencies
func (f *CommandFactory) ExpandDiskCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "expand-disk <size>",
		Short:   "Grow the container's storage pool",
		Example: "  lxt expand-disk 10G",
		Args:    cobra.ExactArgs(1),
		RunE: f.runAction(command.ActionExpandDisk, func(_ *cobra.Command, args []string, in *command.Instruction) {
			in.ExpandSize = args[0]
		}),
	}
}

func (f *CommandFactory) simple(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE:  f.runAction(action, nil),
	}
}
